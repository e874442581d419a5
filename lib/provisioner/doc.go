// provisioner.Provision is called once per effect run, after the
// run's secrets/ directory is created and before the Container Runner
// ([lib/container]) launches the builder — secrets.json is bind-mounted
// read-only into the sandbox.
package provisioner
