package hiveapi

type handlers struct {
	deps Deps
}
