// Package rulegraph defines the rule predicate graph consumed by the compiler.
//
// A Rule is a tree of Nodes. Compound nodes group children under a conjunction
// ("and"/"or"); leaf nodes carry the Parts of one predicate in visitation order
// plus its comparison operator. Parts are immutable once loaded.
//
// Rule files are YAML:
//
//	label: Adults with diabetes
//	root:
//	  id: g1
//	  text: Adult diabetic
//	  conjunction: and
//	  children:
//	    - id: p1
//	      operator: ">="
//	      parts:
//	        - {kind: text, text: Age}
//	        - {kind: dataInput, dataClass: numeric, text: "18", value: 18}
//	    - id: p2
//	      operator: in
//	      parts:
//	        - {kind: modelElement, concept: {template: Condition, path: Code}}
//	        - {kind: dataInput, code: {code: "44054006", display: Diabetes}}
package rulegraph
