package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"

	"github.com/sophialabs/stubkit/internal/domain/match"
)

// helpers is the request-bound function set shared by every engine.
type helpers struct {
	ctx match.RenderContext
}

func (h helpers) pathParam(name string) string  { return h.ctx.PathParams[name] }
func (h helpers) queryParam(name string) string { return h.ctx.QueryParams[name] }
func (h helpers) body() string                  { return string(h.ctx.Body) }
func (h helpers) now() string                   { return h.ctx.Now }

func (h helpers) header(name string) string {
	if v, ok := h.ctx.Headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range h.ctx.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (h helpers) nowFormat(layout string) string {
	t, err := time.Parse(time.RFC3339, h.ctx.Now)
	if err != nil {
		return h.ctx.Now
	}
	return t.Format(layout)
}

func (h helpers) jsonPath(expression string) string {
	return extractJSONPath(h.ctx.Body, expression)
}

func newUUID() string {
	return uuid.NewString()
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + rand.IntN(max-min+1)
}

func seqInts(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func toJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// extractJSONPath returns the value at expression in a JSON body. Strings are
// returned bare, other values as JSON, and failures as "".
func extractJSONPath(body []byte, expression string) string {
	if len(body) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	result, err := jsonpath.Get(expression, data)
	if err != nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return toJSONString(result)
}
