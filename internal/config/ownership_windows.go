package config

func fixOwnership(string) {}
