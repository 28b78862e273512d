package utils

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig loads environment variables from a .env file in path (when
// present) and primes viper so flags and env keys resolve the same way.
func LoadConfig(path string) {
	_ = godotenv.Load(path + "/.env")

	viper.AddConfigPath(path)
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
