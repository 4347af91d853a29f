// Command glucose-insights analyzes glucose data and learns from outcomes
package main

func main() {
	Execute()
}
