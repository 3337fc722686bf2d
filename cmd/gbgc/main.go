// Command gbgc builds the lina genesis spec from the testnet competition
// ledgers and the rewards observed on the testnet chain.
package main

func main() {
	Execute()
}
