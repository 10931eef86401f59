// Package browser exposes the browser actions as agent tools.
//
// Each tool takes flat XML arguments, converts them to the action's JSON
// arguments using the tool schema, and runs the action through a shared
// actions.Executor against one browser session. The tool output is always
// the action's result envelope rendered as JSON:
//
//	{"extractedContent":"...","payload":{...},"includeInMemory":true}
//	{"error":"NotFoundError: no interactive element with index 9 ..."}
//
// Tools never return a Go error for action failures. A failed action is a
// normal outcome the agent loop counts against its own failure budget, so
// it arrives in the envelope's error field instead.
//
// # Tools
//
//   - upload_file: attach an allow-listed file to an upload-capable element
//   - click_and_wait_for_download: click an element and save the download it triggers
//   - get_last_downloaded_file_info: report the newest file in the target directory
//   - force_click_element: dispatch a synthetic click by CSS selector
package browser
