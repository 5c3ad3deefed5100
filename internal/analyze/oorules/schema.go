package oorules

// schemaSource declares the base facts extracted per POU/method and
// the derived violation predicates checked by spec.md §4.5's OO rules.
//
// Base facts (asserted by Check):
//
//	class(Class)
//	interface(Interface)
//	final_class(Class)
//	abstract_class(Class)
//	extends(Sub, Base)
//	implements(Class, Interface)
//	method(Class, Method, Access, IsAbstract, IsOverride)
//	interface_method(Interface, Method)
//
// Derived violations:
//
//	extends_final(Sub, Base)               - Sub extends a FINAL class
//	override_without_base(Class, Method)   - OVERRIDE with no base declaration
//	override_access_mismatch(Class, Method, Access, BaseAccess)
//	abstract_method_concrete_class(Class, Method) - ABSTRACT method outside an ABSTRACT class
//	missing_interface_method(Class, Interface, Method)
const schemaSource = `
Decl class(x) descr [mode("+")].
Decl interface(x) descr [mode("+")].
Decl final_class(x) descr [mode("+")].
Decl abstract_class(x) descr [mode("+")].
Decl extends(sub, base) descr [mode("+", "+")].
Decl implements(class, iface) descr [mode("+", "+")].
Decl method(class, name, access, is_abstract, is_override) descr [mode("+", "+", "+", "+", "+")].
Decl interface_method(iface, name) descr [mode("+", "+")].

Decl extends_final(sub, base) descr [mode("+", "+")].
extends_final(Sub, Base) :- extends(Sub, Base), final_class(Base).

Decl base_method(class, name, access) descr [mode("+", "+", "+")].
base_method(Class, Name, Access) :-
  extends(Class, Base),
  method(Base, Name, Access, _, _).
base_method(Class, Name, Access) :-
  extends(Class, Mid),
  base_method(Mid, Name, Access).

Decl override_without_base(class, name) descr [mode("+", "+")].
override_without_base(Class, Name) :-
  method(Class, Name, _, _, /true),
  !base_method(Class, Name, _).

Decl override_access_mismatch(class, name, access, base_access) descr [mode("+", "+", "+", "+")].
override_access_mismatch(Class, Name, Access, BaseAccess) :-
  method(Class, Name, Access, _, /true),
  base_method(Class, Name, BaseAccess),
  Access != BaseAccess.

Decl abstract_method_concrete_class(class, name) descr [mode("+", "+")].
abstract_method_concrete_class(Class, Name) :-
  method(Class, Name, _, /true, _),
  !abstract_class(Class).

Decl missing_interface_method(class, iface, name) descr [mode("+", "+", "+")].
missing_interface_method(Class, Iface, Name) :-
  implements(Class, Iface),
  interface_method(Iface, Name),
  !method(Class, Name, _, _, _).
`
