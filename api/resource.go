// File: api/resource.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Resource is a response body able to render itself in several MIME types.
type Resource interface {
	// Render returns the representation for mimeType. The wildcard "*/*"
	// selects the resource's default representation. ok is false when the
	// type is not supported.
	Render(mimeType string) (body []byte, contentType string, ok bool)
}

// CompressedResource additionally offers gzip-encoded representations.
type CompressedResource interface {
	Resource
	RenderGzip(mimeType string) (body []byte, contentType string, ok bool)
}
