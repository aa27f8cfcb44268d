package body_guard

import (
	"encoding/json"
	"errors"
	"mime"
	"strings"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
)

var (
	errNotAnObject        = errors.New("body is not a JSON object")
	errUnsupportedContent = errors.New("unsupported content type")
)

type mediaKind int

const (
	mediaOther mediaKind = iota
	mediaJSON
	mediaForm
)

func mediaOf(contentType string) mediaKind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return mediaOther
	}
	switch {
	case mt == "application/json", strings.HasSuffix(mt, "+json"):
		return mediaJSON
	case mt == "application/x-www-form-urlencoded":
		return mediaForm
	default:
		return mediaOther
	}
}

func parseJSON(body []byte) (map[string]interface{}, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, err
	}
	if v.Type() != fastjson.TypeObject {
		return nil, errNotAnObject
	}
	out, _ := toInterface(v).(map[string]interface{})
	return out, nil
}

// toInterface converts a parsed value into plain Go values. Numbers stay as
// json.Number so integers survive unchanged.
func toInterface(v *fastjson.Value) interface{} {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		m := make(map[string]interface{}, obj.Len())
		obj.Visit(func(k []byte, item *fastjson.Value) {
			m[string(k)] = toInterface(item)
		})
		return m
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return json.Number(v.String())
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

// parseForm keeps the first value of each key.
func parseForm(body []byte) map[string]interface{} {
	var args fasthttp.Args
	args.ParseBytes(body)
	out := make(map[string]interface{}, args.Len())
	args.VisitAll(func(k, v []byte) {
		key := string(k)
		if _, seen := out[key]; !seen {
			out[key] = string(v)
		}
	})
	return out
}
