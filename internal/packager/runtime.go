package packager

import (
	"encoding/json"
	"strings"
)

// runtimeStub opens every JS bundle. It keeps one module registry per
// global object so bundles loaded later can require what earlier ones
// registered. The closing "})();" is written by the JS renderer.
const runtimeStub = `(function() {
var __mach = globalThis.__mach || (globalThis.__mach = { modules: {}, cache: {}, bundles: {} });
var mach_base = typeof document !== "undefined" && document.currentScript ? document.currentScript.src.replace(/[^/]*$/, "") : "";
function mach_register(key, factory) {
  if (!(key in __mach.modules)) __mach.modules[key] = factory;
}
function mach_require(key) {
  var cached = __mach.cache[key];
  if (cached) return cached.exports;
  var factory = __mach.modules[key];
  if (!factory) throw new Error("mach: module " + key + " is not registered");
  var module = { exports: {} };
  __mach.cache[key] = module;
  factory(module, module.exports);
  return module.exports;
}
function mach_exports(key) {
  var cached = __mach.cache[key];
  return cached ? cached.exports : undefined;
}
function mach_load(name) {
  if (__mach.bundles[name]) return __mach.bundles[name];
  var loading;
  if (typeof document !== "undefined") {
    loading = new Promise(function(resolve, reject) {
      var el;
      if (/\.css$/.test(name)) {
        el = document.createElement("link");
        el.rel = "stylesheet";
        el.href = mach_base + name;
      } else {
        el = document.createElement("script");
        el.src = mach_base + name;
      }
      el.onload = function() { resolve(); };
      el.onerror = function() { reject(new Error("mach: failed to load " + name)); };
      document.head.appendChild(el);
    });
  } else if (typeof require === "function" && typeof __dirname === "string") {
    loading = Promise.resolve().then(function() {
      if (!/\.css$/.test(name)) require(require("path").join(__dirname, name));
    });
  } else {
    loading = Promise.reject(new Error("mach: no way to load " + name));
  }
  __mach.bundles[name] = loading;
  return loading;
}
function mach_import(bundles, key) {
  return Promise.all(bundles.map(mach_load)).then(function() {
    return key === null ? {} : mach_require(key);
  });
}
function mach_boot(bundles, key) {
  if (bundles.length === 0) {
    mach_require(key);
    return Promise.resolve();
  }
  return mach_import(bundles, key);
}
__mach.require = mach_require;
__mach.exports = mach_exports;
`

// dynamicMarker stands in for import() while esbuild lowers the module, so
// the lowered code still tells lazy loads apart from require.
const dynamicMarker = "__mach_dynamic__"

// quote renders s as a JS string literal.
func quote(s string) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(sb.String(), "\n")
}

// quoteList renders names as a JS array of string literals.
func quoteList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quote(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
