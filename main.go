package main

import "prodtrack/internal/app"

func main() {
	app.Main()
}
