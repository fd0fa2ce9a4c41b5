package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rapture/internal/engine"
)

// Load compiles the rule defined at path. A directory is loaded as one CUE
// package instance; a file is compiled on its own.
func Load(path string) (engine.Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &CompileError{Field: RuleField, Message: fmt.Sprintf("rules not found: %v", err)}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile compiles a single CUE file.
func LoadFile(path string) (engine.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CompileError{Field: RuleField, Message: fmt.Sprintf("reading rules: %v", err)}
	}
	return CompileBytes(data, path)
}

// LoadDir loads every CUE file in dir as one instance and compiles it.
func LoadDir(dir string) (engine.Rule, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Field: RuleField, Message: "no CUE instances loaded"}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(RuleField, inst.Err)
	}

	return Compile(ctx.BuildInstance(inst))
}

// CompileBytes compiles CUE source. filename is used for positions.
func CompileBytes(src []byte, filename string) (engine.Rule, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
}
