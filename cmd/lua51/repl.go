package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"lua51.dev/vm/lua"
)

// repl reads statements from stdin and evaluates them against state
// until EOF or cancellation. A line that parses as an expression is
// wrapped in `return` so its value prints, matching the reference
// interpreter's prompt behavior. A chunk whose only parse error is an
// unexpected end of input continues onto the next line.
func repl(ctx context.Context, state *lua.State) error {
	in := bufio.NewScanner(os.Stdin)
	var pending strings.Builder

	prompt := "> "
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print(prompt)
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := in.Text()
		if pending.Len() > 0 {
			pending.WriteString("\n")
		}
		pending.WriteString(line)
		chunk := pending.String()

		results, err := evalChunk(state, chunk)
		if err != nil {
			if isIncomplete(err) {
				prompt = ">> "
				continue
			}
			fmt.Fprintln(os.Stderr, err)
		} else if len(results) > 0 {
			printValues(state, results)
		}
		pending.Reset()
		prompt = "> "
	}
}

// evalChunk tries the chunk as an expression first (`return <chunk>`),
// falling back to running it as a statement list.
func evalChunk(state *lua.State, chunk string) ([]lua.Value, error) {
	if fn, err := state.LoadString("return "+chunk, "=stdin"); err == nil {
		return state.Call(fn, nil, lua.MultiReturn)
	}
	return state.DoString(chunk, "=stdin")
}

// isIncomplete reports whether a load error indicates the chunk ended
// mid-construct, the signal for multi-line input continuation.
func isIncomplete(err error) bool {
	return strings.Contains(err.Error(), "near <eof>")
}

func printValues(state *lua.State, values []lua.Value) {
	parts := make([]string, len(values))
	for i, v := range values {
		str, err := state.ToDisplayString(v)
		if err != nil {
			str = lua.ToStringValue(v)
		}
		parts[i] = str
	}
	fmt.Println(strings.Join(parts, "\t"))
}
