package main

import (
	"os"

	"joule/cmd"
)

// @title                      Joule API
// @version                    1.0
// @description                能耗数据自然语言问答服务
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
