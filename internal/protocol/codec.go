package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload serializes the message body of p. Send and StartFile are JSON,
// FileData is the raw chunk, every other variant has an empty body.
func Payload(p Packet) ([]byte, error) {
	switch pkt := p.(type) {
	case Send:
		files := pkt.Files
		if files == nil {
			files = []FileMeta{}
		}
		return json.Marshal(files)
	case StartFile:
		return json.Marshal(pkt.Header)
	case FileData:
		return pkt.Data, nil
	case Accept, Reject, EndFile, Finish:
		return nil, nil
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", p)
	}
}

// wire mirrors of the JSON bodies; pointer fields let Decode tell a missing
// field from a zero value.
type wireFileMeta struct {
	Name *string `json:"name"`
	Size *uint64 `json:"size"`
}

type wireHeader struct {
	File  *wireFileMeta `json:"file_info"`
	Index *int          `json:"index"`
	Total *int          `json:"total"`
}

// Decode reconstructs a Packet from its action byte and payload.
// It never panics on arbitrary input; every failure is a *DecodeError.
func Decode(action uint8, payload []byte) (Packet, error) {
	a := Action(action)

	switch a {
	case ActionSend:
		var list *[]*wireFileMeta
		if err := json.Unmarshal(payload, &list); err != nil {
			return nil, malformed(a, err)
		}
		if list == nil {
			return nil, malformed(a, errors.New("file list is null"))
		}
		files := make([]FileMeta, 0, len(*list))
		for i, w := range *list {
			meta, err := w.meta()
			if err != nil {
				return nil, malformed(a, fmt.Errorf("file %d: %w", i, err))
			}
			files = append(files, meta)
		}
		return Send{Files: files}, nil

	case ActionStartFile:
		var w *wireHeader
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(a, err)
		}
		h, err := w.header()
		if err != nil {
			return nil, malformed(a, err)
		}
		return StartFile{Header: h}, nil

	case ActionFileData:
		data := make([]byte, len(payload))
		copy(data, payload)
		return FileData{Data: data}, nil

	case ActionAccept, ActionReject, ActionEndFile, ActionFinish:
		if len(payload) != 0 {
			return nil, malformed(a, fmt.Errorf("unexpected %d byte body", len(payload)))
		}
		switch a {
		case ActionAccept:
			return Accept{}, nil
		case ActionReject:
			return Reject{}, nil
		case ActionEndFile:
			return EndFile{}, nil
		default:
			return Finish{}, nil
		}

	default:
		return nil, &DecodeError{Action: a, Kind: ErrUnknownAction}
	}
}

func (w *wireFileMeta) meta() (FileMeta, error) {
	switch {
	case w == nil:
		return FileMeta{}, errors.New("file is null")
	case w.Name == nil:
		return FileMeta{}, errors.New(`missing "name"`)
	case w.Size == nil:
		return FileMeta{}, errors.New(`missing "size"`)
	}
	return FileMeta{Name: *w.Name, Size: *w.Size}, nil
}

func (w *wireHeader) header() (FileTransferHeader, error) {
	if w == nil {
		return FileTransferHeader{}, errors.New("header is null")
	}
	if w.Index == nil || w.Total == nil {
		return FileTransferHeader{}, errors.New(`missing "index" or "total"`)
	}
	if *w.Index < 0 || *w.Total < 0 {
		return FileTransferHeader{}, fmt.Errorf("negative index %d or total %d", *w.Index, *w.Total)
	}
	meta, err := w.File.meta()
	if err != nil {
		return FileTransferHeader{}, fmt.Errorf("file_info: %w", err)
	}
	return FileTransferHeader{File: meta, Index: *w.Index, Total: *w.Total}, nil
}
