package cclower

// FuncAttr is the function-attribute bitset of MODULE D (§3: "@async,
// @noblock, @latency_sensitive"). The bit values match DECL_ITEM's
// aux2 field so a SymbolTable can be built directly from the stub AST.
type FuncAttr uint8

const (
	AttrAsync            FuncAttr = DeclAsync
	AttrNoBlock          FuncAttr = DeclNoBlock
	AttrLatencySensitive FuncAttr = DeclLatencySensitive
)

// SymbolTable is MODULE D: function name -> attribute bitset.
type SymbolTable struct {
	attrs map[string]FuncAttr
}

// NewSymbolTable returns an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{attrs: make(map[string]FuncAttr)}
}

// Declare records fn's attribute bitset, overwriting any prior entry.
func (s *SymbolTable) Declare(fn string, attrs FuncAttr) {
	s.attrs[fn] = attrs
}

// Attrs returns fn's attribute bitset and whether fn is known. Unknown
// callees are treated as blocking, non-async, non-latency-sensitive by
// every pass that queries this (§4.4: "unknown callees are assumed
// blocking").
func (s *SymbolTable) Attrs(fn string) (FuncAttr, bool) {
	a, ok := s.attrs[fn]
	return a, ok
}

// IsAsync, IsNoBlock, IsLatencySensitive report whether fn carries the
// named attribute. An unknown fn reports false for all three.
func (s *SymbolTable) IsAsync(fn string) bool {
	a, _ := s.attrs[fn]
	return a&AttrAsync != 0
}

func (s *SymbolTable) IsNoBlock(fn string) bool {
	a, _ := s.attrs[fn]
	return a&AttrNoBlock != 0
}

func (s *SymbolTable) IsLatencySensitive(fn string) bool {
	a, _ := s.attrs[fn]
	return a&AttrLatencySensitive != 0
}

// BuildSymbolTable populates a SymbolTable from every DECL_ITEM node in
// ast, the way a real front-end would hand the compiler a pre-built
// table (§6: "a symbol table with per-function attribute bits" is a
// consumed input) — exposed here so tests and the CLI driver can
// derive one directly from a stub AST instead of hand-building it.
func BuildSymbolTable(ast *AST) *SymbolTable {
	st := NewSymbolTable()
	for _, n := range ast.NodesOfKind(KindDeclItem) {
		var attrs FuncAttr
		if n.IsAsync() {
			attrs |= AttrAsync
		}
		if n.IsNoBlock() {
			attrs |= AttrNoBlock
		}
		if n.IsLatencySensitive() {
			attrs |= AttrLatencySensitive
		}
		st.Declare(n.DeclaredName(), attrs)
	}
	return st
}
