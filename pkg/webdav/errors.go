package webdav

import "github.com/pkg/errors"

// ErrBadStatus is wrapped with the offending status code whenever a
// request (including each PROPFIND attempt) receives a non-success
// response.
var ErrBadStatus = errors.New("unexpected response status")

// ErrInvalidXML indicates a multistatus or activity response body could
// not be decoded.
var ErrInvalidXML = errors.New("invalid xml response")

// ErrNotFound indicates a PROPFIND response did not include an entry for
// the requested target.
var ErrNotFound = errors.New("target not found")
