package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/meddb/tests/helpers"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var noAuthorizer bool
	flag.BoolVar(&noAuthorizer, "no-authorizer", false, "start only the database")
	var editorEmail string
	flag.StringVar(&editorEmail, "editor", "", "create an Authorizer account with both edit roles")
	flag.Parse()

	usage := `
Run the meddb development containers (Postgres with the school directory table and
Authorizer) with the environment variables from the .env file.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH] [-no-authorizer] [-editor EMAIL]

ENV_FILE_PATH: path to the .env file
EMAIL: e-mail of an editor account to sign up once Authorizer is running

example
  testcontainers -f /path/to/something/.env -editor editor@example.dk
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGQUIT)

	var testContainers *helpers.TestContainers
	go func() {
		tc, err := helpers.CreateTestContainers(nil, helpers.ContainerOptions{WithAuthorizer: !noAuthorizer})
		if err != nil {
			log.Fatalf("Failed to create test containers: %v\n", err)
		}
		testContainers = tc

		db := tc.DB
		fmt.Println("# meddb environment")
		fmt.Printf("DB_TYPE=%s\nDB_HOST=%s\nDB_PORT=%s\nDB_DATABASE=%s\nDB_USER=%s\nDB_PASSWORD=%s\n",
			db.Type, db.Host, db.Port, db.Database, db.User, db.Password)
		fmt.Printf("SCHOOL_DB_HOST=%s\nSCHOOL_DB_PORT=%s\nSCHOOL_DB_DATABASE=%s\nSCHOOL_DB_USER=%s\nSCHOOL_DB_PASSWORD=%s\nSCHOOL_DB_TABLE=%s\n",
			db.Host, db.Port, db.Database, db.User, db.Password, helpers.SchoolTable)
		if tc.AuthzURL != "" {
			fmt.Printf("AUTHZ_URL=%s\nAUTHZ_CLIENT_ID=%s\n", tc.AuthzURL, tc.AuthzClientID)
			if editorEmail != "" {
				password, _ := helpers.AcquireEditor(nil, tc, editorEmail)
				fmt.Printf("# editor %s password %s\n", editorEmail, password)
			}
		}
	}()

	sig := <-sigs
	log.Printf("\nReceived signal: %v, terminating test containers...\n", sig)
	if testContainers != nil {
		testContainers.Terminate(nil)
	}
}
