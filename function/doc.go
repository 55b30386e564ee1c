// Package function describes the callable surface of a user module.
//
// Functions are discovered, not declared: a loader prints the names (and
// ideally the parameter lists) a source file exports, and [Parse] turns that
// output into a [Table]. Parameter names are kept only for arity checks;
// there is no type information.
package function
