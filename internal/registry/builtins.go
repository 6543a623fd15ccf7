package registry

func init() {
	RegisterBuiltins()
}
