package sandbox

// prelude runs once per mount, before the loaded signal is sent.
//
// It installs the only helpers host-generated code relies on:
//   - __deepFreeze(v): recursively freezes objects and arrays
//   - __bind(name, v): binds a read-only global to v
//
// Both are non-writable and non-configurable so formulas cannot replace
// them for later evaluations sharing this scope. A bound global is a
// non-configurable getter over a private table, so only __bind can change
// its value; defineProperty and delete from formula code fail.
//
// The render function is returned to the host and kept as a Go reference;
// it never lives on the global object. It renders a value as JavaScript
// expression text that evaluates back to an equal value: strings are
// quoted, functions keep their source, undefined stays undefined.
const prelude = `(function (global) {
	"use strict";

	var bound = Object.create(null);

	function deepFreeze(o) {
		if (o !== null && typeof o === "object" && !Object.isFrozen(o)) {
			Object.freeze(o);
			Object.getOwnPropertyNames(o).forEach(function (k) {
				deepFreeze(o[k]);
			});
		}
		return o;
	}

	function bind(name, value) {
		name = String(name);
		if (!(name in bound)) {
			Object.defineProperty(global, name, {
				get: function () { return bound[name]; },
				enumerable: true,
				configurable: false
			});
		}
		bound[name] = value;
	}

	Object.defineProperty(global, "__deepFreeze", { value: deepFreeze, writable: false, configurable: false });
	Object.defineProperty(global, "__bind", { value: bind, writable: false, configurable: false });

	return function render(v) {
		if (v === undefined) {
			return "undefined";
		}
		if (typeof v === "bigint") {
			return String(v) + "n";
		}
		if (typeof v === "number" || typeof v === "function" || typeof v === "symbol") {
			return String(v);
		}
		try {
			var s = JSON.stringify(v);
			return s === undefined ? String(v) : s;
		} catch (e) {
			return String(v);
		}
	};
})(this)`
