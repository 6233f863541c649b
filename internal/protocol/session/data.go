package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/dmcooke/ftactive/internal/dirfs"
	"github.com/dmcooke/ftactive/internal/protocol/packet"
)

var (
	ErrFileNotFound   = errors.New("session: file not found")
	ErrFileUnopenable = errors.New("session: unable to open file")
)

// DataResult summarizes one data session for the orchestrator.
type DataResult struct {
	Command   string
	Filename  string
	FileCount int
	Bytes     int64
	Failed    bool
	Reason    string
}

// RunData executes the validated command over the data connection: a LIST
// streams one FNAME packet per regular file, a GET streams the file in
// FILE packets with a terminal zero-length chunk. Every branch finishes
// with DONE on the data connection and CLOSE on the control connection.
// Application faults (file absent, unopenable) are reported on the control
// connection and returned in the result; only transport faults error out.
func RunData(control, data io.ReadWriter, cmd Command, dir dirfs.Dir) (DataResult, error) {
	result := DataResult{Command: cmd.Tag, Filename: cmd.Filename}

	if err := dispatch(control, data, cmd, dir, &result); err != nil {
		return result, err
	}

	if err := packet.Write(data, packet.TagDone, nil); err != nil {
		return result, err
	}
	if err := packet.Write(control, packet.TagClose, nil); err != nil {
		return result, err
	}
	return result, nil
}

func dispatch(control, data io.ReadWriter, cmd Command, dir dirfs.Dir, result *DataResult) error {
	names, err := dir.ListFiles()
	if err != nil {
		result.Failed = true
		result.Reason = err.Error()
		log.Error().Err(err).Msg("session: directory snapshot failed")
		return nil
	}

	switch cmd.Tag {
	case packet.TagList:
		return sendListing(data, names, result)
	case packet.TagGet:
		return sendFile(control, data, cmd.Filename, names, dir, result)
	default:
		// Control session validated the tag already.
		result.Failed = true
		result.Reason = fmt.Sprintf("unexpected command tag %q", cmd.Tag)
		return nil
	}
}

func sendListing(data io.Writer, names []string, result *DataResult) error {
	for _, name := range names {
		if err := packet.Write(data, packet.TagFileName, []byte(name)); err != nil {
			return err
		}
		result.FileCount++
	}
	return nil
}

func sendFile(control, data io.ReadWriter, filename string, names []string, dir dirfs.Dir, result *DataResult) error {
	if !contains(names, filename) {
		result.Failed = true
		result.Reason = ErrFileNotFound.Error()
		return packet.Write(control, packet.TagError, []byte("File not found"))
	}

	f, err := dir.Open(filename)
	if err != nil {
		result.Failed = true
		result.Reason = ErrFileUnopenable.Error()
		log.Warn().Err(err).Str("file", filename).Msg("session: open failed")
		return packet.Write(control, packet.TagError, []byte("Unable to open file"))
	}
	defer f.Close()

	if err := packet.Write(data, packet.TagFile, []byte(filename)); err != nil {
		return err
	}

	buf := make([]byte, packet.MaxPayloadLen)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if werr := packet.Write(data, packet.TagFile, buf[:n]); werr != nil {
				return werr
			}
			result.Bytes += int64(n)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// End-of-content marker: a zero-length FILE chunk.
			result.FileCount = 1
			return packet.Write(data, packet.TagFile, nil)
		}
		result.Failed = true
		result.Reason = err.Error()
		log.Error().Err(err).Str("file", filename).Msg("session: file read failed")
		return packet.Write(data, packet.TagFile, nil)
	}
}

func contains(names []string, want string) bool {
	for _, name := range names {
		if name == want {
			return true
		}
	}
	return false
}
