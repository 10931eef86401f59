package browser

import (
	"encoding/json"
	"fmt"
)

// SnapshotScript indexes interactive elements in document order. It clears
// stamps from the previous snapshot first so a stale index can never match.
// The argument is {attr, limit, includeHidden}.
const SnapshotScript = `(opts) => {
	const attr = opts.attr;
	for (const el of document.querySelectorAll('[' + attr + ']')) {
		el.removeAttribute(attr);
	}
	const selector = [
		'a[href]', 'button', 'input', 'select', 'textarea', 'summary', 'label',
		'[role="button"]', '[role="link"]', '[role="tab"]', '[role="menuitem"]',
		'[role="checkbox"]', '[role="option"]', '[onclick]',
		'[tabindex]:not([tabindex="-1"])', '[contenteditable="true"]'
	].join(',');
	const out = [];
	let index = 0;
	for (const el of document.querySelectorAll(selector)) {
		if (out.length >= opts.limit) break;
		const tag = el.tagName.toLowerCase();
		const inputType = tag === 'input' ? (el.getAttribute('type') || 'text').toLowerCase() : '';
		const isFile = inputType === 'file';
		const control = tag === 'label' ? el.control : null;
		const labelsFile = !!control && control.tagName === 'INPUT' &&
			(control.getAttribute('type') || '').toLowerCase() === 'file';
		if (!isFile && !opts.includeHidden) {
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
		}
		el.setAttribute(attr, String(index));
		const text = el.getAttribute('aria-label') || el.getAttribute('title') ||
			el.getAttribute('placeholder') || el.innerText || el.value || '';
		out.push({
			index: index,
			tag: tag,
			role: el.getAttribute('role') || '',
			label: String(text).trim().replace(/\s+/g, ' ').slice(0, 80),
			input_type: inputType,
			accepts_files: isFile || labelsFile
		});
		index++;
	}
	return out;
}`

// ForceClickScript clicks the first element matching the selector argument
// through the DOM, returning false when nothing matches.
const ForceClickScript = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return false;
	el.click();
	return true;
}`

// SnapshotScriptArg builds the argument object for SnapshotScript.
func SnapshotScriptArg(opts SnapshotOptions) map[string]interface{} {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	return map[string]interface{}{
		"attr":          IndexAttribute,
		"limit":         limit,
		"includeHidden": opts.IncludeHidden,
	}
}

// DecodeSnapshotElements converts the script's evaluation result, as
// returned by a driver's generic JSON decoding, into references.
func DecodeSnapshotElements(raw interface{}) ([]ElementReference, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot result: %w", err)
	}
	var refs []ElementReference
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("decode snapshot result: %w", err)
	}
	return refs, nil
}
