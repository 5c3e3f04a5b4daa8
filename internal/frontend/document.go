package frontend

import (
	"gopkg.in/yaml.v3"

	"kernelgen/internal/ir"
)

// document is the top level of an IR file.
type document struct {
	Module string     `yaml:"module" validate:"required"`
	Values []valueDoc `yaml:"values" validate:"dive"`
	Funcs  []funcDoc  `yaml:"funcs" validate:"required,min=1,dive"`
}

// valueDoc declares a value defined outside every function, usually a
// global buffer. Without a shape it is a scalar.
type valueDoc struct {
	ID    string  `yaml:"id" validate:"required"`
	Type  string  `yaml:"type" validate:"required,oneof=f16 f32 f64 i32 index"`
	Shape []int64 `yaml:"shape" validate:"dive,gt=0"`
	Space string  `yaml:"space" validate:"omitempty,oneof=global shared register"`
}

type funcDoc struct {
	Name string      `yaml:"name" validate:"required"`
	Body []yaml.Node `yaml:"body"`
}

type parallelDoc struct {
	IVs    []string    `yaml:"ivs" validate:"required,min=1,max=3,dive,required"`
	Ranges []int64     `yaml:"ranges" validate:"required,dive,gt=0"`
	Body   []yaml.Node `yaml:"body"`
}

type forDoc struct {
	IV     string      `yaml:"iv" validate:"required"`
	Lower  int64       `yaml:"lower"`
	Upper  int64       `yaml:"upper"`
	Step   int64       `yaml:"step" validate:"gt=0"`
	Unroll bool        `yaml:"unroll"`
	Body   []yaml.Node `yaml:"body"`
}

type constraintDoc struct {
	Expr string `yaml:"expr" validate:"required"`
	Eq   bool   `yaml:"eq"`
}

type ifDoc struct {
	Constraints []constraintDoc `yaml:"constraints" validate:"required,min=1,dive"`
	Operands    []string        `yaml:"operands"`
	Body        []yaml.Node     `yaml:"body"`
}

type constantDoc struct {
	ID    string  `yaml:"id" validate:"required"`
	Type  string  `yaml:"type" validate:"required,oneof=f16 f32 f64 i32 index"`
	Value float64 `yaml:"value"`
}

type applyDoc struct {
	ID       string   `yaml:"id" validate:"required"`
	Expr     string   `yaml:"expr" validate:"required"`
	Operands []string `yaml:"operands"`
}

type arithDoc struct {
	ID  string `yaml:"id" validate:"required"`
	Op  string `yaml:"op" validate:"required,oneof=mul add sub div max pow"`
	LHS string `yaml:"lhs" validate:"required"`
	RHS string `yaml:"rhs" validate:"required"`
}

type mathDoc struct {
	ID      string `yaml:"id" validate:"required"`
	Op      string `yaml:"op" validate:"required,oneof=sqrt log exp tanh"`
	Operand string `yaml:"operand" validate:"required"`
}

type cmpDoc struct {
	ID   string `yaml:"id" validate:"required"`
	Pred string `yaml:"pred" validate:"required,oneof=eq gt ge lt le ne"`
	LHS  string `yaml:"lhs" validate:"required"`
	RHS  string `yaml:"rhs" validate:"required"`
}

type bitcastDoc struct {
	ID      string `yaml:"id" validate:"required"`
	Type    string `yaml:"type" validate:"required,oneof=f16 f32 f64 i32 index"`
	Operand string `yaml:"operand" validate:"required"`
}

type allocDoc struct {
	ID    string  `yaml:"id" validate:"required"`
	Type  string  `yaml:"type" validate:"required,oneof=f16 f32 f64 i32 index"`
	Shape []int64 `yaml:"shape" validate:"required,min=1,dive,gt=0"`
	Space string  `yaml:"space" validate:"required,oneof=global shared register"`
}

type loadDoc struct {
	ID       string   `yaml:"id" validate:"required"`
	Memref   string   `yaml:"memref" validate:"required"`
	Map      []string `yaml:"map" validate:"required,min=1,dive,required"`
	Operands []string `yaml:"operands"`
}

type indexedLoadDoc struct {
	ID      string   `yaml:"id" validate:"required"`
	Memref  string   `yaml:"memref" validate:"required"`
	Indices []string `yaml:"indices" validate:"required,min=1,dive,required"`
}

type storeDoc struct {
	Value    string   `yaml:"value" validate:"required"`
	Memref   string   `yaml:"memref" validate:"required"`
	Map      []string `yaml:"map" validate:"required,min=1,dive,required"`
	Operands []string `yaml:"operands"`
}

type vectorLoadDoc struct {
	ID       string   `yaml:"id" validate:"required"`
	Memref   string   `yaml:"memref" validate:"required"`
	Lanes    int      `yaml:"lanes" validate:"gt=0"`
	Map      []string `yaml:"map" validate:"required,min=1,dive,required"`
	Operands []string `yaml:"operands"`
}

type vectorStoreDoc struct {
	Value    string   `yaml:"value" validate:"required"`
	Memref   string   `yaml:"memref" validate:"required"`
	Lanes    int      `yaml:"lanes" validate:"gt=0"`
	Map      []string `yaml:"map" validate:"required,min=1,dive,required"`
	Operands []string `yaml:"operands"`
}

type shuffleDoc struct {
	ID     string `yaml:"id" validate:"required"`
	Mode   string `yaml:"mode" validate:"required,oneof=down idx up xor"`
	Value  string `yaml:"value" validate:"required"`
	Offset string `yaml:"offset" validate:"required"`
	Width  string `yaml:"width" validate:"required"`
}

var nodeKinds = []string{
	"parallel", "for", "if", "constant", "apply", "arith", "math", "cmp", "bitcast",
	"alloc", "load", "indexed_load", "store", "vector_load", "vector_store",
	"barrier", "shuffle", "yield",
}

var elemTypes = map[string]ir.ElemType{
	"f16":   ir.F16,
	"f32":   ir.F32,
	"f64":   ir.F64,
	"i32":   ir.Int,
	"index": ir.Index,
}

var memorySpaces = map[string]ir.MemorySpace{
	"":         ir.Global,
	"global":   ir.Global,
	"shared":   ir.Shared,
	"register": ir.Register,
}

var binaryOps = map[string]ir.BinaryOp{
	"mul": ir.MulF,
	"add": ir.AddF,
	"sub": ir.SubF,
	"div": ir.DivF,
	"max": ir.MaxF,
	"pow": ir.PowF,
}

var unaryOps = map[string]ir.UnaryOp{
	"sqrt": ir.Sqrt,
	"log":  ir.Log,
	"exp":  ir.Exp,
	"tanh": ir.Tanh,
}

var predicates = map[string]ir.Predicate{
	"eq": ir.PredEQ,
	"gt": ir.PredGT,
	"ge": ir.PredGE,
	"lt": ir.PredLT,
	"le": ir.PredLE,
	"ne": ir.PredNE,
}

var shuffleModes = map[string]ir.ShuffleMode{
	"down": ir.ShuffleDown,
	"idx":  ir.ShuffleIdx,
	"up":   ir.ShuffleUp,
	"xor":  ir.ShuffleXor,
}
