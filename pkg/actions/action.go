package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Action is one of the fixed set of browser actions. The set is closed:
// only the types in this package implement it.
type Action interface {
	// Name is the stable identifier callers use to invoke the action.
	Name() string

	action()
}

// Action names.
const (
	NameUploadFile       = "upload_file"
	NameClickAndDownload = "click_and_wait_for_download"
	NameLatestDownload   = "get_last_downloaded_file_info"
	NameForceClick       = "force_click_element"
)

// UploadFile attaches an allow-listed host file to the upload-capable
// element at Index.
type UploadFile struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// ClickAndDownload clicks the element at Index and saves the download it
// triggers into the session's target directory.
type ClickAndDownload struct {
	Index int `json:"index"`
}

// LatestDownload reports the most recently modified file in the target directory.
type LatestDownload struct{}

// ForceClick dispatches a synthetic click to the element matching Selector.
type ForceClick struct {
	Selector string `json:"selector"`
}

func (UploadFile) Name() string       { return NameUploadFile }
func (ClickAndDownload) Name() string { return NameClickAndDownload }
func (LatestDownload) Name() string   { return NameLatestDownload }
func (ForceClick) Name() string       { return NameForceClick }

func (UploadFile) action()       {}
func (ClickAndDownload) action() {}
func (LatestDownload) action()   {}
func (ForceClick) action()       {}

// Descriptor is the static metadata of an action.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Descriptors returns metadata for every action, in a fixed order.
func Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name: NameUploadFile,
			Description: "Uploads a file from the host system into the page. The path must be one of the " +
				"files made available for this task, and index must refer to a file input (or a label bound to one).",
			InputSchema: objectSchema(map[string]interface{}{
				"index": integerProp("Index of the upload-capable element in the current page snapshot"),
				"path":  stringProp("Absolute path of the file to upload; must be on the allow-list"),
			}, "index", "path"),
		},
		{
			Name: NameClickAndDownload,
			Description: "Clicks an element (by index) expected to trigger a file download and waits for the " +
				"download to complete, saving it into the target download directory.",
			InputSchema: objectSchema(map[string]interface{}{
				"index": integerProp("Index of the element to click in the current page snapshot"),
			}, "index"),
		},
		{
			Name: NameLatestDownload,
			Description: "Retrieves information about the most recently downloaded file in the target " +
				"download directory. Use after a download to confirm the file path and metadata.",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name: NameForceClick,
			Description: "Forcefully clicks an element using a CSS selector by dispatching a JavaScript click event. " +
				"Use this as a fallback if a normal click doesn't work.",
			InputSchema: objectSchema(map[string]interface{}{
				"selector": stringProp("CSS selector of the element to click"),
			}, "selector"),
		},
	}
}

// Lookup returns the descriptor named name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func integerProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "minimum": 0, "description": desc}
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

// Parse decodes JSON arguments into the action called name. Argument
// problems are reported as ValidationError.
func Parse(name string, args json.RawMessage) (Action, error) {
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}

	switch name {
	case NameUploadFile:
		var raw struct {
			Index *int   `json:"index"`
			Path  string `json:"path"`
		}
		if err := decodeStrict(args, &raw); err != nil {
			return nil, invalidArgs(name, err)
		}
		if raw.Index == nil {
			return nil, invalidArgs(name, fmt.Errorf("index is required"))
		}
		if strings.TrimSpace(raw.Path) == "" {
			return nil, invalidArgs(name, fmt.Errorf("path is required"))
		}
		return UploadFile{Index: *raw.Index, Path: raw.Path}, nil

	case NameClickAndDownload:
		var raw struct {
			Index *int `json:"index"`
		}
		if err := decodeStrict(args, &raw); err != nil {
			return nil, invalidArgs(name, err)
		}
		if raw.Index == nil {
			return nil, invalidArgs(name, fmt.Errorf("index is required"))
		}
		return ClickAndDownload{Index: *raw.Index}, nil

	case NameLatestDownload:
		var raw struct{}
		if err := decodeStrict(args, &raw); err != nil {
			return nil, invalidArgs(name, err)
		}
		return LatestDownload{}, nil

	case NameForceClick:
		var raw ForceClick
		if err := decodeStrict(args, &raw); err != nil {
			return nil, invalidArgs(name, err)
		}
		if strings.TrimSpace(raw.Selector) == "" {
			return nil, invalidArgs(name, fmt.Errorf("selector is required"))
		}
		return raw, nil

	default:
		return nil, errorf(KindValidation, nil, "unknown action %q", name)
	}
}

func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func invalidArgs(name string, err error) error {
	return errorf(KindValidation, err, "invalid arguments for %s: %v", name, err)
}
