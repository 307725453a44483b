// Package elm provides the logic-expression intermediate representation produced by
// the rule compiler.
//
// The IR follows the shape of HL7 ELM (Expression Logical Model): retrieves of model
// resources, queries with aliased sources, let clauses, where and return clauses, set
// operators, and boolean composition. Nodes are plain Go structs; a Library is the
// unit handed to a downstream serializer.
//
// SEALED INTERFACE:
//
// Expression is sealed using the marker method pattern. Only types in this package
// implement it, so type switches over expressions (encoding, validation, walking)
// are exhaustive:
//
//	switch e := expr.(type) {
//	case *Retrieve:
//	    // ...
//	case *Query:
//	    // ...
//	}
//
// OWNERSHIP:
//
// Every node exclusively owns its children, with one exception: CodeRef and
// ValueSetRef values handed out by the terminology registry may be referenced from
// several queries. They are never mutated after construction.
//
// ENCODING:
//
// MarshalExpression and Library.MarshalJSON emit ELM-flavoured JSON with a "type"
// discriminator on each node. MarshalCanonical produces the canonical form used for
// content hashing and golden files.
//
// This package imports nothing internal.
package elm
