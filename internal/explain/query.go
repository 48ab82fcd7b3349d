package explain

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrChunkNotFound is returned for a name with no filed explanation.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrConditionOutOfRange is returned for a condition number outside the
	// rule's conditions.
	ErrConditionOutOfRange = errors.New("condition number out of range")
	// ErrNotTraced is returned when no backtrace record tested a ground, or
	// when the chain from it never reaches a result.
	ErrNotTraced = errors.New("condition was not traced")
)

// maxTraceSteps bounds the walk from a ground to the result.
const maxTraceSteps = 50

// FindChunk returns the explanation filed under name.
func (r *Recorder) FindChunk(name string) (*Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, name)
	}
	return c, nil
}

// NthGround returns the working-memory condition behind the rule's nth
// condition, counting from 1.
func (r *Recorder) NthGround(name string, n int) (string, error) {
	c, err := r.FindChunk(name)
	if err != nil {
		return "", err
	}
	return c.ground(n)
}

func (c *Chunk) ground(n int) (string, error) {
	if n < 1 || n > len(c.Grounds) {
		return "", fmt.Errorf("%w: %d of %s (1..%d)", ErrConditionOutOfRange, n, c.Name, len(c.Grounds))
	}
	return c.Grounds[n-1], nil
}

// ListChunks prints the names of every explained rule, newest first.
func (r *Recorder) ListChunks(w io.Writer) {
	chunks := r.Chunks()
	if len(chunks) == 0 {
		fmt.Fprintln(w, "No chunks/justifications built yet!")
		return
	}
	fmt.Fprintln(w, "List of all explained chunks/justifications:")
	for _, c := range chunks {
		fmt.Fprintf(w, "Have explanation for %s\n", c.Name)
	}
}

// CondList prints the rule with each numbered condition followed by the
// ground it came from.
func (r *Recorder) CondList(w io.Writer, name string) error {
	c, err := r.find(w, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "sp {%s\n", c.Name)
	for i, cond := range c.Conditions {
		fmt.Fprintf(w, "  %2d : %s\n", i+1, cond)
		if i < len(c.Grounds) {
			fmt.Fprintf(w, "       Ground : %s\n", c.Grounds[i])
		}
	}
	fmt.Fprintln(w, "   -->")
	for _, a := range c.Actions {
		fmt.Fprintf(w, "   %s\n", a)
	}
	fmt.Fprintln(w, "}")
	return nil
}

// Trace prints every backtrace record of the chunk.
func (r *Recorder) Trace(w io.Writer, name string) error {
	c, err := r.find(w, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Chunk : %s\n", c.Name)
	for _, rec := range c.Backtraces {
		fmt.Fprintf(w, "Backtrace production : %s\n", rec.Rule)
		result := 0
		if rec.Result() {
			result = 1
		}
		fmt.Fprintf(w, "Result : %d\n", result)
		if !rec.Result() {
			fmt.Fprintf(w, "Trace condition : %s\n", rec.TraceCond)
		}
		printConds(w, "The grounds are:", rec.Grounds)
		printConds(w, "\nThe potentials are:", rec.Potentials)
		printConds(w, "\nThe locals are:", rec.Locals)
		printConds(w, "\nThe negated conditions are:", rec.Negated)
		fmt.Fprintln(w)
	}
	return nil
}

// Explain prints the chain of firings that put the rule's nth condition into
// it, from the firing that tested the ground up to the one that made a result.
func (r *Recorder) Explain(w io.Writer, name string, n int) error {
	c, err := r.find(w, name)
	if err != nil {
		return err
	}
	ground, err := c.ground(n)
	if err != nil {
		fmt.Fprintf(w, "Could not find condition %d of %s.\n", n, name)
		return err
	}

	// Negated conditions are recorded only under Negated.
	var rec *BacktraceRecord
	for _, list := range []func(*BacktraceRecord) [][]string{
		func(b *BacktraceRecord) [][]string { return [][]string{b.Grounds} },
		func(b *BacktraceRecord) [][]string { return [][]string{b.Potentials} },
		func(b *BacktraceRecord) [][]string { return [][]string{b.Negated} },
	} {
		if rec = c.testedBy(ground, list); rec != nil {
			break
		}
	}
	if rec == nil {
		fmt.Fprintf(w, "EXPLAIN: no traced production tested %s.\n", ground)
		return fmt.Errorf("%w: %s in %s", ErrNotTraced, ground, name)
	}

	fmt.Fprintf(w, "Explanation of why condition %s was included in %s\n\n", ground, name)
	fmt.Fprintf(w, "Production %s matched\n   %s which caused\n", rec.Rule, ground)

	for steps := 0; !rec.Result() && steps < maxTraceSteps; steps++ {
		match := rec.TraceCond
		next := c.testedBy(match, func(b *BacktraceRecord) [][]string {
			return [][]string{b.Locals, b.Negated, b.Potentials, b.Grounds}
		})
		if next == nil {
			fmt.Fprintf(w, "EXPLAIN: lost the trace at %s.\n", match)
			return fmt.Errorf("%w: %s in %s", ErrNotTraced, match, name)
		}
		fmt.Fprintf(w, "production %s to match\n   %s which caused\n", next.Rule, match)
		rec = next
	}
	if !rec.Result() {
		fmt.Fprintf(w, "EXPLAIN: no result within %d steps of %s.\n", maxTraceSteps, ground)
		return fmt.Errorf("%w: %s in %s never reaches a result", ErrNotTraced, ground, name)
	}
	fmt.Fprintln(w, "A result to be generated.")
	return nil
}

func (r *Recorder) find(w io.Writer, name string) (*Chunk, error) {
	c, err := r.FindChunk(name)
	if err != nil {
		fmt.Fprintln(w, "Could not find the chunk.  Maybe explain was not on when it was created.")
	}
	return c, err
}

// testedBy returns the newest record whose selected lists contain cond.
func (c *Chunk) testedBy(cond string, lists func(*BacktraceRecord) [][]string) *BacktraceRecord {
	for _, rec := range c.Backtraces {
		for _, l := range lists(rec) {
			for _, s := range l {
				if s == cond {
					return rec
				}
			}
		}
	}
	return nil
}

func printConds(w io.Writer, header string, conds []string) {
	fmt.Fprintln(w, header)
	if len(conds) == 0 {
		return
	}
	fmt.Fprintf(w, "   %s\n", strings.Join(conds, "\n   "))
}
