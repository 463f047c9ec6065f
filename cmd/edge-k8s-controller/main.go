package main

import "github.com/avranju/iotedge-k8s/pkg/cmd"

func main() {
	cmd.Execute()
}
