package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/dop251/goja"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// eventDocument renders event as the generic JSON document JSONPathRule and
// ScriptRule conditions evaluate against, so rule authors see the same
// field names the event carries in Go.
func eventDocument(event Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal event document: %w", err)
	}
	return doc, nil
}

// JSONPathRule builds a Rule whose Condition evaluates a JSONPath
// expression against the canonical event document, matching when the
// expression resolves to a truthy boolean. Any evaluation error (a
// malformed path, a path with no match) is a non-match, consistent with
// AlertEngine's "a buggy rule must not stop the pipeline" requirement.
func JSONPathRule(name, path string, severity Severity, channel string) (Rule, error) {
	if path == "" {
		return Rule{}, apperrors.ArgumentNull("path")
	}
	eval, err := jsonpath.New(path)
	if err != nil {
		return Rule{}, apperrors.ArgumentInvalid("path", err.Error())
	}

	condition := func(event Event) bool {
		doc, err := eventDocument(event)
		if err != nil {
			return false
		}
		result, err := eval(context.Background(), doc)
		if err != nil {
			return false
		}
		matched, ok := result.(bool)
		return ok && matched
	}

	return Rule{
		Name:                name,
		Condition:           condition,
		Severity:            severity,
		NotificationChannel: channel,
	}, nil
}

// ScriptRule builds a Rule whose Condition compiles and runs a JavaScript
// boolean expression with a fresh, sandboxed goja runtime per evaluation.
// The script sees the canonical event document bound to the global
// "event" and must evaluate to a boolean; a compile error is returned to
// the caller immediately, but a runtime error or non-boolean result is
// treated as a non-match rather than surfaced through AlertEngine.
func ScriptRule(name, script string, severity Severity, channel string) (Rule, error) {
	if script == "" {
		return Rule{}, apperrors.ArgumentNull("script")
	}
	if _, err := goja.Compile(name, script, true); err != nil {
		return Rule{}, apperrors.ArgumentInvalid("script", err.Error())
	}

	condition := func(event Event) bool {
		doc, err := eventDocument(event)
		if err != nil {
			return false
		}

		vm := goja.New()
		if err := vm.Set("event", doc); err != nil {
			return false
		}

		value, err := vm.RunString(script)
		if err != nil {
			return false
		}

		matched, ok := value.Export().(bool)
		return ok && matched
	}

	return Rule{
		Name:                name,
		Condition:           condition,
		Severity:            severity,
		NotificationChannel: channel,
	}, nil
}
