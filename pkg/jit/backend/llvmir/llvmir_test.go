package llvmir

import (
	"strings"
	"testing"

	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/jit/cfg"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

func buildFromHex(t *testing.T, raw []byte) *cfg.Func {
	t.Helper()
	code, err := bytecode.Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ic := bytecode.Index(bytecode.Augment(code))
	f, err := cfg.Build(ic)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("cfg.Verify: %v", err)
	}
	return f
}

func TestBuildStraightLine(t *testing.T) {
	raw := []byte{byte(opcode.PUSH1), 0x03, byte(opcode.PUSH1), 0x05, byte(opcode.ADD), byte(opcode.STOP)}
	f := buildFromHex(t, raw)
	m, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ir := m.String()
	if !strings.Contains(ir, "contract_main") {
		t.Errorf("IR dump missing contract_main function:\n%s", ir)
	}
	if !strings.Contains(ir, "declare") {
		t.Errorf("IR dump missing sload/sstore declarations:\n%s", ir)
	}
}

func TestBuildLoopEmitsPhi(t *testing.T) {
	// Same shape as cfg.TestBuildLoopHasPhi: a JUMPDEST reached both by
	// fallthrough and by a fused back-edge must get a real phi in the IR.
	raw := []byte{
		byte(opcode.JUMPDEST),
		byte(opcode.PUSH1), 0x00, byte(opcode.JUMP),
	}
	f := buildFromHex(t, raw)
	m, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ir := m.String()
	if !strings.Contains(ir, "phi") {
		t.Errorf("IR dump for a looping contract should contain at least one phi instruction:\n%s", ir)
	}
}
