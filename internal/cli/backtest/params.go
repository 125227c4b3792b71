package backtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/report"
	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

// LoadParams reads a parameter set on top of base. It accepts an optimize
// result file (its selected_result is used), a JSON object with a
// "params" member, a bare JSON parameter object or the YAML equivalent.
func LoadParams(path string, base strategy.Params) (strategy.Params, error) {
	p := base
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return p, errs.Data("read", path, "%v", err)
		}
		if err := yaml.Unmarshal(b, &p); err != nil {
			return p, errs.Data("parse", path, "%v", err)
		}
		return p, p.Validate()
	}

	var raw map[string]json.RawMessage
	if err := report.ReadJSON(path, &raw); err != nil {
		return p, errs.Data("read", path, "%v", err)
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return p, err
	}
	if sel, ok := raw["selected_result"]; ok && string(sel) != "null" {
		var t struct {
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(sel, &t); err != nil {
			return p, errs.Data("parse", path, "selected_result: %v", err)
		}
		body = t.Params
	} else if inner, ok := raw["params"]; ok {
		body = inner
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, errs.Data("parse", path, "%v", err)
	}
	return p, p.Validate()
}
