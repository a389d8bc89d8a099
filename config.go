package tiny

import "fmt"

// Config is the typed key/value settings map every State is built
// from. Call NewConfig for a copy primed with every key, then
// SetInt/SetBool/SetString to override before passing it to NewState.
type Config map[string]*cfgVal

// NewConfig returns a Config primed with tiny's default tunables
// (spec.md §6 "Config"):
//
//	vm.stack_size          value-stack depth (DefaultStackSize)
//	vm.indir_size          indirection-stack depth, in triples (DefaultIndirSize/3)
//	limits.max_program_length  0 disables the cap
//	limits.max_numbers         distinct number literals per State, 0 disables
//	limits.max_strings         distinct string literals per State, 0 disables
//	limits.max_call_arguments  arguments per call site, 0 disables
func NewConfig() *Config {
	m := make(Config)
	m.SetInt("vm.stack_size", DefaultStackSize)
	m.SetInt("vm.indir_size", DefaultIndirSize/3)
	m.SetInt("limits.max_program_length", 0)
	m.SetInt("limits.max_numbers", 0)
	m.SetInt("limits.max_strings", 0)
	m.SetInt("limits.max_call_arguments", 255)
	return &m
}

type cfgValType int

const (
	cfgValTypeUndefined cfgValType = iota
	cfgValTypeBool
	cfgValTypeInt
	cfgValTypeString
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValTypeUndefined: "undefined",
		cfgValTypeBool:      "bool",
		cfgValTypeInt:       "int",
		cfgValTypeString:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValTypeUndefined {
		panic(fmt.Sprintf("tiny: can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("tiny: can't retrieve `%s` from `%s` setting", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeBool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeInt)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValTypeString)
	(*c)[path].asString = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeBool)
		return val.asBool
	}
	panic(fmt.Sprintf("tiny: bool setting `%s` does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeInt)
		return val.asInt
	}
	panic(fmt.Sprintf("tiny: int setting `%s` does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValTypeString)
		return val.asString
	}
	panic(fmt.Sprintf("tiny: string setting `%s` does not exist", path))
}

// resolvedConfig is the small, fixed-shape projection of a Config that
// the VM actually touches on hot paths (NewThread reads it once per
// Thread). Keeping Config itself an open map of typed values gives
// embedders a uniform settings surface, per spec.md §6; resolving it
// once avoids map lookups inside NewThread/push/pop.
type resolvedConfig struct {
	stackSize        int
	indirSize        int
	maxProgramLength int
	maxNumbers       int
	maxStrings       int
	maxCallArguments int
}

func resolveConfig(cfg *Config) resolvedConfig {
	if cfg == nil {
		cfg = NewConfig()
	}
	return resolvedConfig{
		stackSize:        cfg.GetInt("vm.stack_size"),
		indirSize:        cfg.GetInt("vm.indir_size") * 3,
		maxProgramLength: cfg.GetInt("limits.max_program_length"),
		maxNumbers:       cfg.GetInt("limits.max_numbers"),
		maxStrings:       cfg.GetInt("limits.max_strings"),
		maxCallArguments: cfg.GetInt("limits.max_call_arguments"),
	}
}
