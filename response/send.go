// File: response/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package response

import (
	"fmt"

	"github.com/momentics/hioload-gateway/request"
	"github.com/momentics/hioload-gateway/stream"
)

// SendTo serializes r against req and sends it through ds with the
// response's connection flags. On a serialization error nothing is sent and
// ds stays owned by the caller.
func (r *Response) SendTo(ds *stream.DataStream, req *request.Request) error {
	buf, err := r.Serialize(req)
	if err != nil {
		return err
	}
	if err := ds.Send(buf, 0, len(buf), r.conn); err != nil {
		return fmt.Errorf("send %d byte response: %w", len(buf), err)
	}
	return nil
}
