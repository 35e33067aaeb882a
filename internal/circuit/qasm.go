package circuit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ghalamif/QShield/internal/domain"
)

// QASM renders spec as OpenQASM 2.0 with a final measurement of every qubit
// into a classical register of the same width.
func QASM(spec domain.TransformSpec) (string, error) {
	var b strings.Builder
	b.WriteString("OPENQASM 2.0;\ninclude \"qelib1.inc\";\n")
	fmt.Fprintf(&b, "qreg q[%d];\ncreg c[%d];\n", spec.Width, spec.Width)

	for i, op := range spec.Ops {
		switch op.Gate {
		case domain.GateH:
			fmt.Fprintf(&b, "h q[%d];\n", op.Target)
		case domain.GateRX, domain.GateRY, domain.GateRZ:
			fmt.Fprintf(&b, "%s(%s) q[%d];\n", op.Gate, strconv.FormatFloat(op.Angle, 'g', -1, 64), op.Target)
		case domain.GateCX:
			fmt.Fprintf(&b, "cx q[%d],q[%d];\n", op.Control, op.Target)
		default:
			return "", fmt.Errorf("qasm: op %d: unsupported gate %q", i, op.Gate)
		}
	}
	b.WriteString("measure q -> c;\n")
	return b.String(), nil
}
