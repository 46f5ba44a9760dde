package webdav

import "encoding/xml"

// propfindBody is the fixed PROPFIND request body ncsync sends for every
// list operation, requesting just the two properties the entry tree
// needs: the etag and enough of the content type to distinguish files
// from directories.
const propfindBody = `<?xml version="1.0"?>
<d:propfind xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns" xmlns:nc="http://nextcloud.org/ns">
  <d:prop>
        <d:getetag />
        <d:getcontenttype />
  </d:prop>
</d:propfind>
`

// multistatus mirrors a WebDAV PROPFIND response: one <response> element
// per resource found under the requested depth.
type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href     string   `xml:"href"`
	Propstat propstat `xml:"propstat"`
}

type propstat struct {
	Prop prop `xml:"prop"`
}

type prop struct {
	Etag        string `xml:"getetag"`
	ContentType string `xml:"getcontenttype"`
}

// ocsActivityEnvelope wraps the Nextcloud OCS activity-log payload, one
// <element> per activity entry.
type ocsActivityEnvelope struct {
	XMLName xml.Name       `xml:"ocs"`
	Data    ocsActivityData `xml:"data"`
}

type ocsActivityData struct {
	Elements []activityElement `xml:"element"`
}

// activityElement is decoded loosely: Type names the activity kind, and
// Raw keeps the full inner XML so mapActivityElement can re-walk it looking for
// file/newfile/oldfile subtrees by tag-name pattern, matching the
// reference implementation's descendant-scanning approach rather than a
// fixed schema.
type activityElement struct {
	Type string `xml:"type"`
	Raw  []byte `xml:",innerxml"`
}

// activityFileGroup is the shape of a <file...>/<newfile...>/<oldfile...>
// subtree: zero or more <path> children.
type activityFileGroup struct {
	XMLName xml.Name `xml:""`
	Paths   []string `xml:"path"`
}
