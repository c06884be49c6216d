package main

func (cli *commandLine) migrate(command string) error {
	return migrateFunc(cli.db, command)
}
