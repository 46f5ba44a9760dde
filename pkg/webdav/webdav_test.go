package webdav

import (
	"strings"
	"testing"
)

func TestDecodeMultistatusSplitsFilesAndDirectories(t *testing.T) {
	body := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/dav/files/user/notes/</d:href>
    <d:propstat><d:prop><d:getetag>"abc"</d:getetag><d:getcontenttype></d:getcontenttype></d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/files/user/notes/a.md</d:href>
    <d:propstat><d:prop><d:getetag>"def"</d:getetag><d:getcontenttype>text/markdown</d:getcontenttype></d:prop></d:propstat>
  </d:response>
</d:multistatus>`

	entries, err := decodeMultistatus(strings.NewReader(body), "/remote.php/dav/files/user")
	if err != nil {
		t.Fatalf("decodeMultistatus: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	dir, file := entries[0], entries[1]
	if !dir.IsDir || dir.Path != "/notes/" {
		t.Errorf("unexpected dir entry: %+v", dir)
	}
	if file.IsDir || file.Path != "/notes/a.md" || file.Etag != "def" {
		t.Errorf("unexpected file entry: %+v", file)
	}
}

func TestMapActivityElementFileCreated(t *testing.T) {
	el := activityElement{
		Type: "file_created",
		Raw:  []byte(`<file id="1"><path>/a/b.md</path></file>`),
	}

	events := mapActivityElement(el)
	if len(events) != 1 || events[0].Kind != RemoteCreate || events[0].Path != "/a/b.md" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestMapActivityElementFileDeleted(t *testing.T) {
	el := activityElement{
		Type: "file_deleted",
		Raw:  []byte(`<file><path>/a/b.md</path></file>`),
	}

	events := mapActivityElement(el)
	if len(events) != 1 || events[0].Kind != RemoteDelete {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestMapActivityElementFileChangedWithoutNewfileIsModify(t *testing.T) {
	el := activityElement{
		Type: "file_changed",
		Raw:  []byte(`<file><path>/a/b.md</path></file>`),
	}

	events := mapActivityElement(el)
	if len(events) != 1 || events[0].Kind != RemoteModify {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestMapActivityElementFileChangedWithNewfileIsMove(t *testing.T) {
	el := activityElement{
		Type: "file_changed",
		Raw: []byte(
			`<oldfile><path>/a/old-long-name.md</path></oldfile>` +
				`<oldfile><path>/a/old.md</path></oldfile>` +
				`<newfile><path>/a/new.md</path></newfile>`,
		),
	}

	events := mapActivityElement(el)
	if len(events) != 2 {
		t.Fatalf("expected 2 move events, got %d: %+v", len(events), events)
	}
	for _, e := range events {
		if e.Kind != RemoteMove || e.Path != "/a/new.md" {
			t.Errorf("unexpected event: %+v", e)
		}
	}
	if events[0].OldPath != "/a/old-long-name.md" {
		t.Errorf("expected longer old path first, got %+v", events)
	}
}

func TestMapActivityElementFileRestoredExpandsToCreate(t *testing.T) {
	el := activityElement{
		Type: "file_restored",
		Raw:  []byte(`<file><path>/a/restored.md</path></file>`),
	}

	events := mapActivityElement(el)
	if len(events) != 1 || events[0].Kind != RemoteCreate {
		t.Fatalf("unexpected events: %+v", events)
	}
}
