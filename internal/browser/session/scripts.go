package session

// refAttr tags every element handed out by the driver so that later actions
// can find exactly that node again, or learn that it was detached.
const refAttr = "data-fleetpm-ref"

// Shared helpers prepended to every script.
const jsPrelude = `
const __ref = 'data-fleetpm-ref';
const __visible = (el) => {
	if (!el || !el.isConnected) return false;
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
};
const __text = (n) => ((n.innerText !== undefined ? n.innerText : n.textContent) || '').replace(/\s+/g, ' ').trim();
const __query = (q, root) => {
	if (q.by === 'xpath') {
		const out = [];
		const snap = document.evaluate(q.expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
		return out;
	}
	return Array.from(root.querySelectorAll(q.expr));
};
const __root = (q) => {
	if (!q.scope) return document;
	const r = document.querySelector('[' + __ref + '="' + q.scope + '"]');
	return r && r.isConnected ? r : null;
};
const __byRef = (ref) => {
	const el = document.querySelector('[' + __ref + '="' + ref + '"]');
	return el && el.isConnected ? el : null;
};
`

// findScript returns the visible matches of a query with their fields.
// Refs carry a per-document token so a ref from a previous document can
// never alias a node in the current one.
const findScript = `(function(q) {` + jsPrelude + `
	const root = __root(q);
	if (!root) return [];
	window.__fleetpmDoc = window.__fleetpmDoc || Math.random().toString(36).slice(2, 8);
	window.__fleetpmSeq = window.__fleetpmSeq || 0;
	const out = [];
	for (const el of __query(q, root)) {
		if (!(el instanceof Element) || !__visible(el)) continue;
		let ref = el.getAttribute(__ref);
		if (!ref) {
			ref = window.__fleetpmDoc + '-' + (++window.__fleetpmSeq);
			el.setAttribute(__ref, ref);
		}
		const fields = {};
		for (const name in (q.fields || {})) {
			const hit = document.evaluate(q.fields[name], el, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			if (hit) fields[name] = __text(hit);
		}
		const cls = el.getAttribute('class') || '';
		out.push({
			ref: ref,
			text: __text(el),
			class: cls,
			value: el.value !== undefined && el.value !== null ? String(el.value) : '',
			enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true' && !/(^|[\s_-])disabled/i.test(cls),
			fields: fields,
		});
	}
	return out;
})(%s)`

// signatureScript counts visible matches for each named probe.
const signatureScript = `(function(probes) {` + jsPrelude + `
	const out = {};
	for (const name in probes) {
		const q = probes[name];
		const root = __root(q);
		out[name] = root ? __query(q, root).filter((el) => el instanceof Element && __visible(el)).length : 0;
	}
	return out;
})(%s)`

// checkRefScript reports "ok" when the ref is attached and visible, and
// scrolls it into view so the following native click lands on it.
const checkRefScript = `(function(ref) {` + jsPrelude + `
	const el = __byRef(ref);
	if (!el || !__visible(el)) return 'stale';
	el.scrollIntoView({block: 'center', inline: 'center'});
	return 'ok';
})(%s)`

// jsClickScript is the fallback when the native click fails.
const jsClickScript = `(function(ref) {` + jsPrelude + `
	const el = __byRef(ref);
	if (!el) return 'stale';
	el.click();
	return 'ok';
})(%s)`

// clearInputScript focuses an input and clears it through the native value
// setter so framework-controlled inputs observe the change.
const clearInputScript = `(function(ref) {` + jsPrelude + `
	const el = __byRef(ref);
	if (!el || !__visible(el)) return 'stale';
	el.focus();
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (desc && desc.set) { desc.set.call(el, ''); } else { el.value = ''; }
	el.dispatchEvent(new Event('input', {bubbles: true}));
	return 'ok';
})(%s)`

const readyStateScript = `document.readyState`
