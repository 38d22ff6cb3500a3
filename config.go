package cclower

import "fmt"

// PipelineConfig gates which optional passes run, the same way the
// teacher's Config (config.go) gates grammar.add_charsets /
// grammar.handle_spaces in its query pipeline. Every pass is on by
// default; the CLI driver flips these off via -disable-<pass> flags
// (cmd/cclower/main.go) mirroring cmd/langlang's -disable-builtins.
type PipelineConfig map[string]*cfgVal

// NewPipelineConfig returns a config with every pass enabled and
// optimize level 1, matching the teacher's NewConfig defaults shape.
func NewPipelineConfig() *PipelineConfig {
	c := make(PipelineConfig)
	c.SetBool("pipeline.ufcs", true)
	c.SetBool("pipeline.closures", true)
	c.SetBool("pipeline.slice_check", true)
	c.SetBool("pipeline.auto_blocking", true)
	c.SetBool("pipeline.await_hoist", true)
	c.SetBool("pipeline.async_lowering", true)
	c.SetBool("pipeline.arena_defer", true)
	c.SetBool("pipeline.marker_strip", true)
	c.SetInt("pipeline.optimize", 1)
	return &c
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("Can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("Can't retrieve `%s` from `%s` variable", vt, v.typ))
	}
}

func (c *PipelineConfig) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *PipelineConfig) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *PipelineConfig) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *PipelineConfig) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("Bool setting `%s` does not exist", path))
}

func (c *PipelineConfig) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("Int setting `%s` does not exist", path))
}

func (c *PipelineConfig) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("String setting `%s` does not exist", path))
}
