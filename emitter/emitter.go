package emitter

// Emitter writes host instructions into a CodeBuffer.
//
// Running out of space does not abort emission: the first overflow is
// latched and later emits are dropped, so a caller checks Err once after
// generating a whole block.
type Emitter struct {
	buf *CodeBuffer
	err error
}

// New creates an emitter writing to buf.
func New(buf *CodeBuffer) *Emitter {
	return &Emitter{buf: buf}
}

// Buffer returns the underlying code buffer.
func (e *Emitter) Buffer() *CodeBuffer {
	return e.buf
}

// Bookmark returns the current write position. It is the entry point of
// the code emitted next and a valid jump target.
func (e *Emitter) Bookmark() int {
	return e.buf.used
}

// Err returns ErrBufferFull if an emit did not fit since the last Reset.
func (e *Emitter) Err() error {
	return e.err
}

// Reset discards all emitted code and clears the latched error.
func (e *Emitter) Reset() {
	e.buf.Reset()
	e.err = nil
}

// Rewind moves the write position back to a bookmark and clears the latched
// error, discarding everything emitted after it.
func (e *Emitter) Rewind(at int) {
	e.buf.used = at
	e.err = nil
}

// Emit appends inst and returns its position.
func (e *Emitter) Emit(inst Inst) int {
	at := e.buf.used
	if e.err != nil || e.buf.Remaining() < InstSize {
		e.err = ErrBufferFull
		return at
	}
	inst.Encode(e.buf.mem[at:])
	e.buf.used += InstSize
	return at
}

// Patch rewrites the instruction at position at.
func (e *Emitter) Patch(at int, inst Inst) {
	if at+InstSize > e.buf.used {
		return
	}
	inst.Encode(e.buf.mem[at:])
}

// PatchTarget points the jump at position at to target.
func (e *Emitter) PatchTarget(at, target int) {
	if at+InstSize > e.buf.used {
		return
	}
	inst := DecodeInst(e.buf.mem[at:])
	inst.Imm = uint32(target)
	inst.Encode(e.buf.mem[at:])
}

// Nop emits a no-op. A reserved Nop can later be patched into another
// instruction.
func (e *Emitter) Nop() int { return e.Emit(Inst{Op: OpNop}) }

// MovImm emits d = imm.
func (e *Emitter) MovImm(d Reg, imm uint32) { e.Emit(Inst{Op: OpMovImm, A: d, Imm: imm}) }

// Mov emits d = s.
func (e *Emitter) Mov(d, s Reg) {
	if d != s {
		e.Emit(Inst{Op: OpMov, A: d, B: s})
	}
}

// LoadCtx emits d = ctx[off].
func (e *Emitter) LoadCtx(d Reg, off uint32) { e.Emit(Inst{Op: OpLoadCtx, A: d, Imm: off}) }

// StoreCtx emits ctx[off] = s.
func (e *Emitter) StoreCtx(off uint32, s Reg) { e.Emit(Inst{Op: OpStoreCtx, A: s, Imm: off}) }

// StoreCtxImm emits ctx[off] = imm. off must be below 64KB.
func (e *Emitter) StoreCtxImm(off uint32, imm uint32) {
	e.Emit(Inst{Op: OpStoreCtxImm, B: Reg(off), C: Reg(off >> 8), Imm: imm})
}

// StoreCtxIdx emits ctx[base+4*idx] = s.
func (e *Emitter) StoreCtxIdx(base uint32, idx, s Reg) {
	e.Emit(Inst{Op: OpStoreCtxIdx, A: s, B: idx, Imm: base})
}

// ALU emits a three-register operation d = a op b.
func (e *Emitter) ALU(op Op, d, a, b Reg) { e.Emit(Inst{Op: op, A: d, B: a, C: b}) }

// ALUImm emits a register-immediate operation d = a op imm.
func (e *Emitter) ALUImm(op Op, d, a Reg, imm uint32) { e.Emit(Inst{Op: op, A: d, B: a, Imm: imm}) }

// Jmp emits an unconditional jump and returns its position for patching.
func (e *Emitter) Jmp(target int) int { return e.Emit(Inst{Op: OpJmp, Imm: uint32(target)}) }

// Jz emits a jump taken when r is zero and returns its position.
func (e *Emitter) Jz(r Reg, target int) int {
	return e.Emit(Inst{Op: OpJz, A: r, Imm: uint32(target)})
}

// Jnz emits a jump taken when r is non-zero and returns its position.
func (e *Emitter) Jnz(r Reg, target int) int {
	return e.Emit(Inst{Op: OpJnz, A: r, Imm: uint32(target)})
}

// Call emits a call to helper id. Arguments are taken from ArgRegs and
// results returned in ResultRegs. Volatile registers do not survive.
func (e *Emitter) Call(id HelperID) { e.Emit(Inst{Op: OpCall, Imm: uint32(id)}) }

// Enter emits a stack frame prologue.
func (e *Emitter) Enter() { e.Emit(Inst{Op: OpEnter}) }

// Leave emits a stack frame epilogue.
func (e *Emitter) Leave() { e.Emit(Inst{Op: OpLeave}) }

// Ret emits a return to the caller with RAX as the result.
func (e *Emitter) Ret() { e.Emit(Inst{Op: OpRet}) }

// Disassemble decodes n bytes of code starting at position at.
func Disassemble(code []byte, at, n int) []Inst {
	var out []Inst
	for pos := at; pos+InstSize <= at+n && pos+InstSize <= len(code); pos += InstSize {
		out = append(out, DecodeInst(code[pos:]))
	}
	return out
}
