package webdav

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

const activityPath = "/ocs/v2.php/apps/activity/api/v2/activity/all"

// RemoteEventKind classifies a decoded activity-log entry.
type RemoteEventKind uint8

const (
	// RemoteCreate indicates a new file appeared.
	RemoteCreate RemoteEventKind = iota
	// RemoteDelete indicates a file was removed.
	RemoteDelete
	// RemoteModify indicates a file's content changed in place.
	RemoteModify
	// RemoteMove indicates a file was relocated or renamed.
	RemoteMove
)

// RemoteEvent is one unit of change decoded from the activity log.
type RemoteEvent struct {
	Kind RemoteEventKind
	Path string
	// OldPath is set only for RemoteMove.
	OldPath string
}

// ocsURL builds the absolute activity endpoint URL, with query appended
// verbatim if non-empty.
func (c *Client) ocsURL(query string) (string, error) {
	base, err := url.Parse(c.Host)
	if err != nil {
		return "", errors.Wrap(err, "invalid host URL")
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + activityPath
	base.RawQuery = query
	return base.String(), nil
}

func (c *Client) ocsRequest(ctx context.Context, query string) (*http.Response, error) {
	rawURL, err := c.ocsURL(query)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("OCS-APIRequest", "true")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "activity request failed")
	}
	return resp, nil
}

// FetchActivityCursor fetches the current activity cursor, for bootstrap
// when no cache exists: the first poll then begins from this cursor
// rather than replaying the server's entire activity history.
func (c *Client) FetchActivityCursor(ctx context.Context) (string, error) {
	resp, err := c.ocsRequest(ctx, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	return resp.Header.Get("X-Activity-First-Known"), nil
}

// PollActivities fetches activity entries since the given cursor,
// paginating via X-Activity-Last-Given until the server replies 304 (no
// further events) or an error occurs. Pagination errors are only
// reported if no page was successfully consumed; otherwise whatever
// progress was made is returned with a nil error, so a mid-pagination
// network blip does not discard events the engine has already
// committed to processing.
func (c *Client) PollActivities(ctx context.Context, since string) ([]RemoteEvent, string, error) {
	var events []RemoteEvent
	cursor := since
	progressed := false

	for {
		query := url.Values{
			"since": {cursor},
			"sort":  {"asc"},
		}.Encode()

		resp, err := c.ocsRequest(ctx, query)
		if err != nil {
			if progressed {
				return events, cursor, nil
			}
			return nil, cursor, err
		}

		if resp.StatusCode == http.StatusNotModified {
			resp.Body.Close()
			break
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			if progressed {
				return events, cursor, nil
			}
			return nil, cursor, errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
		}

		pageEvents, err := decodeActivityPage(resp.Body)
		lastGiven := resp.Header.Get("X-Activity-Last-Given")
		resp.Body.Close()
		if err != nil {
			if progressed {
				return events, cursor, nil
			}
			return nil, cursor, err
		}

		events = append(events, pageEvents...)
		progressed = true

		if lastGiven == "" || lastGiven == cursor {
			break
		}
		cursor = lastGiven
	}

	return events, cursor, nil
}

func decodeActivityPage(body io.Reader) ([]RemoteEvent, error) {
	reader, err := charset.NewReader(body, "application/xml")
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine response charset")
	}

	var envelope ocsActivityEnvelope
	if err := xml.NewDecoder(reader).Decode(&envelope); err != nil {
		return nil, errors.Wrap(ErrInvalidXML, err.Error())
	}

	var events []RemoteEvent
	for _, el := range envelope.Data.Elements {
		events = append(events, mapActivityElement(el)...)
	}
	return events, nil
}

// genericNode is a permissive XML tree used to scan an activity
// element's descendants by tag-name prefix, mirroring the reference
// implementation's use of roxmltree's unstructured descendant walk.
type genericNode struct {
	XMLName xml.Name
	Nodes   []genericNode `xml:",any"`
	Paths   []string      `xml:"path"`
}

// mapActivityElement maps one <element> to zero or more RemoteEvents per
// the type-driven rules: file_created/file_deleted map directly;
// file_changed maps to Move (when a newfile subtree is present) or
// Modify; file_restored maps to one Create per restored path. The
// descendants of a restored directory are not expanded into further
// Create events, here or by the engine.
func mapActivityElement(el activityElement) []RemoteEvent {
	var root genericNode
	if err := xml.Unmarshal(wrapRaw(el.Raw), &root); err != nil {
		return nil
	}

	var filePaths, newPaths, oldPaths []string
	collectByPrefix(root, &filePaths, &newPaths, &oldPaths)

	switch el.Type {
	case "file_created":
		events := make([]RemoteEvent, 0, len(filePaths))
		for _, p := range filePaths {
			events = append(events, RemoteEvent{Kind: RemoteCreate, Path: p})
		}
		return events
	case "file_deleted":
		events := make([]RemoteEvent, 0, len(filePaths))
		for _, p := range filePaths {
			events = append(events, RemoteEvent{Kind: RemoteDelete, Path: p})
		}
		return events
	case "file_changed":
		if len(newPaths) > 0 {
			target := newPaths[len(newPaths)-1]
			sort.Slice(oldPaths, func(i, j int) bool {
				return len(oldPaths[i]) > len(oldPaths[j])
			})
			events := make([]RemoteEvent, 0, len(oldPaths))
			for _, old := range oldPaths {
				events = append(events, RemoteEvent{Kind: RemoteMove, Path: target, OldPath: old})
			}
			return events
		}
		events := make([]RemoteEvent, 0, len(filePaths))
		for _, p := range filePaths {
			events = append(events, RemoteEvent{Kind: RemoteModify, Path: p})
		}
		return events
	case "file_restored":
		events := make([]RemoteEvent, 0, len(filePaths))
		for _, p := range filePaths {
			events = append(events, RemoteEvent{Kind: RemoteCreate, Path: p})
		}
		return events
	default:
		return nil
	}
}

// collectByPrefix walks node and its descendants, sorting <path> values
// found under each matched subtree into filePaths, newPaths, or
// oldPaths by tag-name prefix: "newfile*" and "oldfile*" are checked
// before the generic "file*", since both start with a letter other than
// 'f'.
func collectByPrefix(node genericNode, filePaths, newPaths, oldPaths *[]string) {
	name := node.XMLName.Local
	switch {
	case strings.HasPrefix(name, "newfile"):
		*newPaths = append(*newPaths, node.Paths...)
	case strings.HasPrefix(name, "oldfile"):
		*oldPaths = append(*oldPaths, node.Paths...)
	case strings.HasPrefix(name, "file"):
		*filePaths = append(*filePaths, node.Paths...)
	}

	for _, child := range node.Nodes {
		collectByPrefix(child, filePaths, newPaths, oldPaths)
	}
}

// wrapRaw wraps an element's inner XML fragment in a synthetic root so
// it can be decoded as a standalone document.
func wrapRaw(raw []byte) []byte {
	wrapped := make([]byte, 0, len(raw)+40)
	wrapped = append(wrapped, []byte("<root>")...)
	wrapped = append(wrapped, raw...)
	wrapped = append(wrapped, []byte("</root>")...)
	return wrapped
}
