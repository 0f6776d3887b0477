package session

// ClientState is the position of a Client in its session.
type ClientState uint8

const (
	ClientInit ClientState = iota
	ClientWaitForResponse
	ClientAccepted
	ClientStartSendingFile
	ClientSendFileData
	ClientEndSendingFile
	ClientFinish
	ClientError
)

// String returns the name of the state.
func (s ClientState) String() string {
	switch s {
	case ClientInit:
		return "Init"
	case ClientWaitForResponse:
		return "WaitForResponse"
	case ClientAccepted:
		return "Accepted"
	case ClientStartSendingFile:
		return "StartSendingFile"
	case ClientSendFileData:
		return "SendFileData"
	case ClientEndSendingFile:
		return "EndSendingFile"
	case ClientFinish:
		return "Finish"
	case ClientError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s ClientState) Terminal() bool {
	return s == ClientFinish || s == ClientError
}

// ServerState is the position of a Server in its session.
type ServerState uint8

const (
	ServerInit ServerState = iota
	ServerInternalAnswer
	ServerWaitForFile
	ServerStartReceivingFile
	ServerReceiveFileData
	ServerEndReceivingFile
	ServerFinish
	ServerError
)

// String returns the name of the state.
func (s ServerState) String() string {
	switch s {
	case ServerInit:
		return "Init"
	case ServerInternalAnswer:
		return "InternalAnswer"
	case ServerWaitForFile:
		return "WaitForFile"
	case ServerStartReceivingFile:
		return "StartReceivingFile"
	case ServerReceiveFileData:
		return "ReceiveFileData"
	case ServerEndReceivingFile:
		return "EndReceivingFile"
	case ServerFinish:
		return "Finish"
	case ServerError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s ServerState) Terminal() bool {
	return s == ServerFinish || s == ServerError
}
