// Package main is the entry point for crudkit.
//
//	@title			crudkit API
//	@version		1.0
//	@description	REST CRUD endpoints generated from entity definitions.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@BasePath		/
package main

func main() {
	Execute()
}
