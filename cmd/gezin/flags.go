package main

import "github.com/spf13/pflag"

// mustBind ties a flag to a config key. Only a nil flag can fail, which is a
// programming error.
func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
