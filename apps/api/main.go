package main

// TODO: rate limit the /v1/ai endpoints per user on top of the monthly quotas
func main() {
	startWithDig()
}
