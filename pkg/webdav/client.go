// Package webdav implements the Server client: the six WebDAV resource
// operations (list, download, upload, mkcol, delete, move) and the two
// Nextcloud OCS activity-log control-plane calls, all authenticated by
// HTTP basic auth.
package webdav

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/pathutil"
)

const (
	// listRetryAttempts is the total number of PROPFIND attempts (the
	// first try included) before the list operation fails outright.
	listRetryAttempts = 3
	// listRetryDelay is the pause between PROPFIND retry attempts.
	listRetryDelay = 100 * time.Millisecond
)

// Entry is one resource reported by a PROPFIND listing.
type Entry struct {
	// Name is the raw final path segment, decoded from its URL-encoded
	// href. Directory names carry a trailing slash.
	Name string
	// Path is the resource's path relative to the client's root, in
	// canonical textual form (leading slash, no trailing slash for
	// files, trailing slash for directories).
	Path string
	// Etag is the resource's opaque content-version identifier with
	// surrounding quotes stripped.
	Etag string
	// IsDir reports whether the resource is a collection.
	IsDir bool
}

// Client is an authenticated WebDAV + OCS activity client bound to one
// server account and root path.
type Client struct {
	Host     string
	Username string
	Password string
	RootPath string

	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewClient constructs a Client with a sane default HTTP client. host and
// rootPath are normalized via pkg/pathutil the same way the rest of the
// engine normalizes them.
func NewClient(host, username, password, rootPath string, logger *logging.Logger) *Client {
	return &Client{
		Host:     pathutil.FixHost(host),
		Username: username,
		Password: password,
		RootPath: pathutil.FixRoot(rootPath),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: logger,
	}
}

// resourceURL builds the absolute URL for a path relative to the
// client's root, percent-encoding each segment.
func (c *Client) resourceURL(target string) (string, error) {
	full := c.RootPath + pathutil.AddHeadSlash(target)

	base, err := url.Parse(c.Host)
	if err != nil {
		return "", errors.Wrap(err, "invalid host URL")
	}

	segments := strings.Split(strings.TrimPrefix(full, "/"), "/")
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(seg))
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.Join(escaped, "/")
	return base.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to construct request")
	}
	req.SetBasicAuth(c.Username, c.Password)
	return req, nil
}

// List performs a recursive PROPFIND (Depth: Infinity) against target,
// returning every descendant resource including target itself. Any
// failed attempt (transport error, non-success status or undecodable
// body) is retried, for at most listRetryAttempts attempts in total with
// listRetryDelay between them, before failing.
func (c *Client) List(ctx context.Context, target string) ([]Entry, error) {
	rawURL, err := c.resourceURL(target)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < listRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(listRetryDelay):
			}
		}

		entries, err := c.listOnce(ctx, rawURL)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		c.Logger.Warnf("PROPFIND attempt %d/%d for %s failed: %v", attempt+1, listRetryAttempts, target, err)
	}

	return nil, errors.Wrapf(lastErr, "PROPFIND failed after %d attempts", listRetryAttempts)
}

func (c *Client) listOnce(ctx context.Context, rawURL string) ([]Entry, error) {
	req, err := c.newRequest(ctx, "PROPFIND", rawURL, strings.NewReader(propfindBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", "Infinity")
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return decodeMultistatus(resp.Body, c.RootPath)
}

// decodeMultistatus decodes a PROPFIND response body into Entry values,
// stripping rootPath from each href the way the reference
// implementation's xml2responses does, and charset-decoding the body
// first since Nextcloud may declare a non-UTF-8 encoding.
func decodeMultistatus(body io.Reader, rootPath string) ([]Entry, error) {
	reader, err := charset.NewReader(body, "application/xml")
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine response charset")
	}

	var ms multistatus
	if err := xml.NewDecoder(reader).Decode(&ms); err != nil {
		return nil, errors.Wrap(ErrInvalidXML, err.Error())
	}

	entries := make([]Entry, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		href, err := url.QueryUnescape(r.Href)
		if err != nil {
			href = r.Href
		}
		p := strings.TrimPrefix(href, rootPath)
		isDir := r.Propstat.Prop.ContentType == ""

		p = pathutil.DropLastSlash(p)
		name := pathutil.Path2Name(p)
		if isDir {
			p = pathutil.AddLastSlash(p)
			name = pathutil.AddLastSlash(name)
		}

		entries = append(entries, Entry{
			Name:  name,
			Path:  p,
			Etag:  strings.ReplaceAll(r.Propstat.Prop.Etag, `"`, ""),
			IsDir: isDir,
		})
	}

	return entries, nil
}

// Download fetches the contents of target, returning the response body
// (which the caller must close) and the resource's current etag.
func (c *Client) Download(ctx context.Context, target string) (io.ReadCloser, string, error) {
	rawURL, err := c.resourceURL(target)
	if err != nil {
		return nil, "", err
	}

	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "download request failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	etag := strings.ReplaceAll(resp.Header.Get("ETag"), `"`, "")
	if resp.ContentLength > 0 {
		c.Logger.Debugf("downloading %s (%s)", target, humanize.Bytes(uint64(resp.ContentLength)))
	}
	return resp.Body, etag, nil
}

// Upload writes body to target, returning the etag of the version it
// creates.
func (c *Client) Upload(ctx context.Context, target string, body io.Reader) (string, error) {
	rawURL, err := c.resourceURL(target)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPut, rawURL, body)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return strings.ReplaceAll(resp.Header.Get("ETag"), `"`, ""), nil
}

// Mkcol creates a collection (directory) at target. The returned etag
// may be empty, since not every server assigns one to a fresh directory.
func (c *Client) Mkcol(ctx context.Context, target string) (string, error) {
	rawURL, err := c.resourceURL(target)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, "MKCOL", rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "mkcol request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return strings.ReplaceAll(resp.Header.Get("ETag"), `"`, ""), nil
}

// Delete removes target.
func (c *Client) Delete(ctx context.Context, target string) error {
	rawURL, err := c.resourceURL(target)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodDelete, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "delete request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return nil
}

// Move relocates the resource at from to to, via the WebDAV MOVE method
// and Destination header. The returned etag may be empty.
func (c *Client) Move(ctx context.Context, from, to string) (string, error) {
	fromURL, err := c.resourceURL(from)
	if err != nil {
		return "", err
	}
	toURL, err := c.resourceURL(to)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, "MOVE", fromURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Destination", toURL)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "move request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return strings.ReplaceAll(resp.Header.Get("ETag"), `"`, ""), nil
}
