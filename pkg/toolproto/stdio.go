package toolproto

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/aionixone/openact-sub001/pkg/logger"
)

// ServeStdio runs the line-delimited JSON-RPC loop (spec.md §4.10, §6):
// one request per input line, one response per output line. Parse errors
// on a line produce a JSON-RPC -32700 response rather than aborting the
// loop, so one malformed line doesn't kill the session.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: -32700, Message: "parse error"}}); encErr != nil {
				return encErr
			}
			continue
		}

		resp := s.HandleRequest(ctx, req)
		if req.ID == nil {
			// Notification: no response is written.
			continue
		}
		if err := enc.Encode(resp); err != nil {
			logger.Get().Errorw("toolproto: failed to write stdio response", "error", err)
			return err
		}
	}
	return scanner.Err()
}
