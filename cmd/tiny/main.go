package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tiny-lang/tiny"
	"github.com/tiny-lang/tiny/internal/ascii"
)

func main() {
	var (
		scriptPath = flag.String("script", "", "Path to the .tiny source file to run")
		entryFunc  = flag.String("entry", "main", "Name of the function to invoke after compiling")
		dump       = flag.Bool("dump", false, "Print the compiled bytecode instead of running it")
	)
	flag.Parse()

	if *scriptPath == "" {
		log.Fatal("Script not informed")
	}

	state := tiny.NewState(nil)
	if err := bindStdlib(state); err != nil {
		log.Fatalf("Can't bind host functions: %s", err.Error())
	}

	ok, diags := state.CompileFile(*scriptPath)
	if !ok {
		for _, d := range diags {
			fmt.Fprint(os.Stderr, ascii.Color(ascii.DefaultTheme.Error, "%s", d.Error())+"\n")
		}
		os.Exit(1)
	}

	if *dump {
		fmt.Print(state.Disassemble())
		return
	}

	thread := tiny.NewThread(state)
	if err := thread.Start(); err != nil {
		log.Fatalf("Can't start thread: %s", err.Error())
	}

	fnIdx := state.FunctionIndex(*entryFunc)
	if fnIdx < 0 {
		if err := thread.Run(); err != nil {
			log.Fatalf("Runtime error: %s", err.Error())
		}
		return
	}

	if _, err := thread.CallFunction(fnIdx); err != nil {
		log.Fatalf("Runtime error: %s", err.Error())
	}
}

// bindStdlib registers the host functions every script run by this
// CLI can rely on, which is only `print`: PRINT/READ are internal
// opcodes (spec.md §9 keeps PRINT unreachable from surface syntax), so
// printing is exposed as an ordinary foreign function instead. No
// `read` function is bound.
func bindStdlib(state *tiny.State) error {
	return state.BindFunction("print", func(t *tiny.Thread, args []tiny.Value) tiny.Value {
		for i, a := range args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(a.GoString())
		}
		fmt.Println()
		return tiny.NewNull()
	})
}
