// Package protocol defines the file-transfer messages and their payload encoding.
package protocol

import "fmt"

// Action is the one-byte discriminant that leads every frame on the wire.
// The numbering is part of the wire contract and must never be reassigned.
type Action uint8

const (
	ActionSend      Action = 0 // client announces the file list
	ActionAccept    Action = 1 // server accepts the list
	ActionReject    Action = 2 // server declines the list
	ActionStartFile Action = 3 // client begins one file
	ActionFileData  Action = 4 // raw chunk of the current file
	ActionEndFile   Action = 5 // client ends the current file
	ActionFinish    Action = 6 // client ends the session
)

// String returns the name of the action.
func (a Action) String() string {
	switch a {
	case ActionSend:
		return "Send"
	case ActionAccept:
		return "Accept"
	case ActionReject:
		return "Reject"
	case ActionStartFile:
		return "StartFile"
	case ActionFileData:
		return "FileData"
	case ActionEndFile:
		return "EndFile"
	case ActionFinish:
		return "Finish"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// FileMeta describes one file announced by the client. Name is a basename.
type FileMeta struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// FileTransferHeader opens the transfer of the file at Index out of Total.
type FileTransferHeader struct {
	File  FileMeta `json:"file_info"`
	Index int      `json:"index"`
	Total int      `json:"total"`
}

// Packet is one protocol message. The set of implementations is closed:
// Send, Accept, Reject, StartFile, FileData, EndFile and Finish.
type Packet interface {
	Action() Action
	isPacket()
}

// Send announces the ordered list of files the client wants to transfer.
type Send struct {
	Files []FileMeta
}

// Accept is the server's positive answer to Send.
type Accept struct{}

// Reject is the server's negative answer to Send.
type Reject struct{}

// StartFile begins the file described by Header.
type StartFile struct {
	Header FileTransferHeader
}

// FileData carries one chunk of the current file, unmodified.
type FileData struct {
	Data []byte
}

// EndFile marks the end of the current file.
type EndFile struct{}

// Finish marks the end of the session.
type Finish struct{}

func (Send) Action() Action      { return ActionSend }
func (Accept) Action() Action    { return ActionAccept }
func (Reject) Action() Action    { return ActionReject }
func (StartFile) Action() Action { return ActionStartFile }
func (FileData) Action() Action  { return ActionFileData }
func (EndFile) Action() Action   { return ActionEndFile }
func (Finish) Action() Action    { return ActionFinish }

func (Send) isPacket()      {}
func (Accept) isPacket()    {}
func (Reject) isPacket()    {}
func (StartFile) isPacket() {}
func (FileData) isPacket()  {}
func (EndFile) isPacket()   {}
func (Finish) isPacket()    {}
