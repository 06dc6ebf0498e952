// Package notify fans structural and content-change notifications out to
// downstream consumers (analysis workspace, editor buffers, journal).
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened to a node
type Kind int

const (
	FileAdded Kind = iota
	FileRemoved
	FileMoved
	FileRenamed
	FileContentChanged
	DirectoryAdded
	DirectoryRemoved
)

// String returns a string representation of the event kind
func (k Kind) String() string {
	switch k {
	case FileAdded:
		return "file_added"
	case FileRemoved:
		return "file_removed"
	case FileMoved:
		return "file_moved"
	case FileRenamed:
		return "file_renamed"
	case FileContentChanged:
		return "file_content_changed"
	case DirectoryAdded:
		return "directory_added"
	case DirectoryRemoved:
		return "directory_removed"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String. ok is false for unknown names.
func ParseKind(s string) (Kind, bool) {
	for k := FileAdded; k <= DirectoryRemoved; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// IsFileEvent reports whether the event concerns a file node
func (k Kind) IsFileEvent() bool {
	return k <= FileContentChanged
}

// Event is a single notification. Delivery is at-least-once: consumers use
// ID to discard repeats.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	NodeID  string    `json:"nodeId"`
	Path    string    `json:"path"`
	OldPath string    `json:"oldPath,omitempty"`
	Project string    `json:"project,omitempty"` // descriptor path of the owning project
	Time    time.Time `json:"time"`

	// Contents is set for FileAdded only.
	Contents []byte `json:"-"`
}

// NewEvent creates an event with a fresh ID and timestamp
func NewEvent(kind Kind, nodeID, path string) Event {
	return Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		NodeID: nodeID,
		Path:   path,
		Time:   time.Now().UTC(),
	}
}

// Added builds a FileAdded event carrying the file's initial contents
func Added(nodeID, path string, contents []byte) Event {
	ev := NewEvent(FileAdded, nodeID, path)
	ev.Contents = contents
	return ev
}

// Moved builds a FileMoved event
func Moved(nodeID, oldPath, newPath string) Event {
	ev := NewEvent(FileMoved, nodeID, newPath)
	ev.OldPath = oldPath
	return ev
}

// Renamed builds a FileRenamed event
func Renamed(nodeID, oldPath, newPath string) Event {
	ev := NewEvent(FileRenamed, nodeID, newPath)
	ev.OldPath = oldPath
	return ev
}
