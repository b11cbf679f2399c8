package launcher

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveParams merges globals as a base parameter map, then applies each
// module's own params: GLOBAL:<name> references are resolved against
// globals, and the optional `type:` field forces a cast, per spec 4.E
// step 4a/4b.
func ResolveParams(globals map[string]any, m rawModule) (map[string]any, error) {
	params := make(map[string]any, len(globals)+len(m.Params))
	for k, v := range globals {
		params[k] = v
	}

	for _, p := range m.Params {
		if p.Value == nil {
			continue
		}
		val := p.Value
		if s, ok := val.(string); ok && strings.HasPrefix(s, "GLOBAL:") {
			key := strings.TrimPrefix(s, "GLOBAL:")
			gv, ok := globals[key]
			if !ok {
				return nil, fmt.Errorf("launcher: module %q references undefined global %q", m.Name, key)
			}
			val = gv
		}

		cast, err := castParam(val, p.Type)
		if err != nil {
			return nil, fmt.Errorf("launcher: module %q param %q: %w", m.Name, p.Name, err)
		}
		params[p.Name] = cast
	}

	return params, nil
}

func castParam(val any, typ string) (any, error) {
	switch typ {
	case "":
		return val, nil
	case "string":
		return fmt.Sprintf("%v", val), nil
	case "integer":
		switch v := val.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case string:
			return strconv.Atoi(v)
		default:
			return nil, fmt.Errorf("cannot cast %T to integer", val)
		}
	case "float":
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(v, 64)
		default:
			return nil, fmt.Errorf("cannot cast %T to float", val)
		}
	case "boolean":
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			return strings.EqualFold(v, "true"), nil
		default:
			return nil, fmt.Errorf("cannot cast %T to boolean", val)
		}
	default:
		return nil, fmt.Errorf("unknown param type %q", typ)
	}
}

// StackPrefix prepends the launcher's own prefix onto a module's prefix,
// per spec 4.E step 4c. An empty launcher prefix leaves the module prefix
// untouched; an empty module prefix is replaced outright by the launcher
// prefix (matching the original: "else: params['prefix'] = self.prefix").
func StackPrefix(launcherPrefix, modulePrefix string) string {
	switch {
	case launcherPrefix == "":
		return modulePrefix
	case modulePrefix == "":
		return launcherPrefix
	default:
		return launcherPrefix + "." + modulePrefix
	}
}

// IncludeExclude reports whether a module name survives --include/--exclude
// substring filters (include is a whitelist, exclude subtracts), spec 4.E.
func IncludeExclude(name string, includes, excludes []string) bool {
	ok := true
	if len(includes) > 0 {
		ok = false
		for _, inc := range includes {
			if strings.Contains(name, inc) {
				ok = true
				break
			}
		}
	}
	if ok && len(excludes) > 0 {
		for _, exc := range excludes {
			if strings.Contains(name, exc) {
				ok = false
				break
			}
		}
	}
	return ok
}
